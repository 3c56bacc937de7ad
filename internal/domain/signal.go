package domain

import "context"

// Signal channel names published by the session controller and consumed by
// the dashboard hub.
const (
	ChannelBook   = "desk:book"
	ChannelTrades = "desk:trades"
	ChannelOrders = "desk:orders"
	ChannelStatus = "desk:status"
)

// SignalBus carries serialized state updates from the session controller to
// out-of-process consumers (the dashboard hub, external tooling).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

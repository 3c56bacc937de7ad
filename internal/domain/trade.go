package domain

import "time"

// ViewerRole marks which side of a trade the authenticated viewer was on.
type ViewerRole string

const (
	ViewerRoleBid  ViewerRole = "bid"
	ViewerRoleAsk  ViewerRole = "ask"
	ViewerRoleNone ViewerRole = ""
)

// Trade is a canonical trade record normalized from the public feed's
// heterogeneous payload shapes. ViewerRole is derived at read time against
// the current viewer identity, never stored, because the viewer can change
// over the lifetime of a connection.
type Trade struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Price      *float64   `json:"price"`
	Quantity   *int64     `json:"quantity"`
	BidOrderID string     `json:"bidOrderId,omitempty"`
	AskOrderID string     `json:"askOrderId,omitempty"`
	BidUserID  string     `json:"bidUserId,omitempty"`
	AskUserID  string     `json:"askUserId,omitempty"`
	ViewerRole ViewerRole `json:"viewerRole,omitempty"`
}

// RoleFor returns the role the given viewer played in this trade, or
// ViewerRoleNone when the viewer id is empty or matches neither side.
func (t Trade) RoleFor(viewerID string) ViewerRole {
	if viewerID == "" {
		return ViewerRoleNone
	}
	if t.BidUserID == viewerID {
		return ViewerRoleBid
	}
	if t.AskUserID == viewerID {
		return ViewerRoleAsk
	}
	return ViewerRoleNone
}

package domain

// ConnStatus is the observable lifecycle status of one streaming connection.
// Public and private feeds track these independently; they are deliberately
// not collapsed into a single online/offline flag.
type ConnStatus string

const (
	// ConnIdle means the connection is intentionally not established, e.g.
	// the private feed while no credential is held.
	ConnIdle ConnStatus = "idle"

	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnError        ConnStatus = "error"
)

package domain

// Position is one instrument holding reported by GET /api/account.
type Position struct {
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
}

// Account is the authenticated user's view of their engine account.
type Account struct {
	UserID    string     `json:"userId"`
	Cash      float64    `json:"cash"`
	Positions []Position `json:"positions"`
}

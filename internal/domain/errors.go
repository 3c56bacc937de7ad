package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoAuth       = errors.New("authentication required")
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrWSDisconnect = errors.New("websocket disconnected")
)

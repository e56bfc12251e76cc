package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrWSDisconnect  = errors.New("websocket disconnected")

	// Gateway and engine failure taxonomy.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrQuoteUnavailable   = errors.New("quote unavailable")
	ErrHistoryUnavailable = errors.New("history unavailable")
	ErrOrderRejected      = errors.New("order rejected")
	ErrConfigInvalid      = errors.New("invalid configuration")

	ErrTradingActive   = errors.New("trading already active")
	ErrTradingInactive = errors.New("trading not active")
)

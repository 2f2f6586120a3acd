package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoExchanges        = errors.New("no exchange returned data")
	ErrInvalidOpportunity = errors.New("invalid arbitrage opportunity")
	ErrUnknownMode        = errors.New("unknown mode")
	ErrUnknownExchange    = errors.New("unknown exchange")
	ErrLockHeld           = errors.New("lock already held")
)

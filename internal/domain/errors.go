package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrOrderRejected     = errors.New("order rejected")
	ErrOrderNotActive    = errors.New("order not active")
	ErrTransient         = errors.New("transient venue error")
	ErrNotReady          = errors.New("indicators not ready")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
)

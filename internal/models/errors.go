package models

import "errors"

// Sentinel errors shared across services and handlers. Handlers map these
// to HTTP status codes; the websocket layer maps them to error frames.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrEventNotFound      = errors.New("event not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrBusy               = errors.New("event is busy, try again")
	ErrPersistence        = errors.New("persistence failure")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

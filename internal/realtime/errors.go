package realtime

import "errors"

var (
	// ErrCapacityExceeded is returned by Connect when the global connection
	// cap is reached. Service-level, never per-connection.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrMessageTooLarge is returned by the validator before any parsing
	// when a frame exceeds the size cap.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrInvalidJSON is returned when a frame does not decode as a
	// structured object.
	ErrInvalidJSON = errors.New("invalid json payload")

	// ErrMissingType is returned when a frame has no type field.
	ErrMissingType = errors.New("missing message type")

	// ErrPrincipalInactive is returned by Connect for deactivated accounts.
	ErrPrincipalInactive = errors.New("principal is not active")

	// ErrPrincipalExpired is returned by Connect when the presented
	// identity has expired.
	ErrPrincipalExpired = errors.New("principal credentials expired")

	// ErrShuttingDown is returned by Connect after Shutdown has begun.
	ErrShuttingDown = errors.New("connection manager is shutting down")
)

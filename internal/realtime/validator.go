package realtime

import (
	"encoding/json"
	"fmt"
)

// Validator parses and structurally validates inbound frames. It checks the
// size cap before touching the payload, so hostile input costs O(1). Type
// membership is left to the router, so "unknown type" and "malformed
// envelope" stay distinguishable error codes for the client.
type Validator struct {
	maxSize int
}

// NewValidator creates a validator with the given frame size cap in bytes.
func NewValidator(maxSize int) *Validator {
	return &Validator{maxSize: maxSize}
}

// Parse decodes a raw frame into an Envelope. It fails with
// ErrMessageTooLarge, ErrInvalidJSON, or ErrMissingType.
func (v *Validator) Parse(raw []byte) (Envelope, error) {
	if len(raw) > v.maxSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(raw), v.maxSize)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

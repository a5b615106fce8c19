package interview

import "errors"

var (
	// ErrTokenNotFound means no interview carries the presented token.
	ErrTokenNotFound = errors.New("confirmation token not found")

	// ErrTokenExpired means the token exists but its interview is no longer
	// pending, so the token no longer grants a state change.
	ErrTokenExpired = errors.New("confirmation token expired")

	// ErrSlotMismatch means the chosen slot is not one of the offered slots.
	ErrSlotMismatch = errors.New("chosen slot not in offered set")
)

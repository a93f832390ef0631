package services

import (
	"errors"
)

// Callers match these with errors.Is; handlers map them to HTTP statuses.
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrOnboardingRequired = errors.New("complete your profile before continuing")
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrBookingConflict    = errors.New("car is already booked for those dates")
)

package workflow

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = goerr.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = goerr.New("invalid state")
)

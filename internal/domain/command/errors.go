package command

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidCursor is returned when a persisted cursor does not fit the chain
	ErrInvalidCursor = goerr.New("cursor does not match command chain")
)

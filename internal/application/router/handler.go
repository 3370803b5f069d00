package router

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is an inbound bus message that satisfied a shape
type Message struct {
	Raw []byte
	Doc gjson.Result
}

// Get returns the value at a gjson path
func (m Message) Get(path string) gjson.Result {
	return m.Doc.Get(path)
}

// Handler processes a routed message
type Handler func(ctx context.Context, msg Message) error

// RouteInfo describes a registered route
type RouteInfo struct {
	Name  string
	Shape string
}

// DecodeError reports a message that matched a shape's demands but failed
// its requirements. It is logged and never retried.
type DecodeError struct {
	Shape    string
	Problems []string
}

func (e *DecodeError) Error() string {
	return "message does not satisfy shape " + e.Shape + ": " + strings.Join(e.Problems, "; ")
}

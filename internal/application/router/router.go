package router

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tidwall/gjson"
)

// Router matches inbound messages against declared shapes and hands each to
// at most one handler
type Router interface {
	// Register adds a route named after its shape
	Register(shape *Shape, handler Handler)

	// RegisterNamed adds a route with an explicit name for logging
	RegisterNamed(name string, shape *Shape, handler Handler)

	// OnMessage routes one raw message. It returns *DecodeError when a shape's
	// demands held but its requirements did not, the handler error when the
	// handler fails, and nil when no shape claimed the message.
	OnMessage(ctx context.Context, raw []byte) error

	// Routes lists registered routes in evaluation order
	Routes() []RouteInfo
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type route struct {
	name    string
	shape   *Shape
	handler Handler
}

type messageRouter struct {
	mu     sync.RWMutex
	routes []route
	logger Logger
}

// Option configures the router
type Option func(*messageRouter)

// WithLogger sets a logger for the router
func WithLogger(logger Logger) Option {
	return func(r *messageRouter) {
		r.logger = logger
	}
}

// New creates an empty router
func New(opts ...Option) Router {
	r := &messageRouter{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *messageRouter) Register(shape *Shape, handler Handler) {
	r.RegisterNamed(shape.Name(), shape, handler)
}

func (r *messageRouter) RegisterNamed(name string, shape *Shape, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, route{name: name, shape: shape, handler: handler})

	if r.logger != nil {
		r.logger.Info("Route registered",
			"route", name,
			"shape", shape.Name(),
		)
	}
}

func (r *messageRouter) OnMessage(ctx context.Context, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		if r.logger != nil {
			r.logger.Info("Ignoring message that is not valid JSON", "size", len(raw))
		}
		return nil
	}
	doc := gjson.ParseBytes(raw)

	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	var decodeErr *DecodeError
	for _, rt := range routes {
		if !rt.shape.demanded(doc) {
			continue
		}
		if problems := rt.shape.problems(doc); len(problems) > 0 {
			if decodeErr == nil {
				decodeErr = &DecodeError{Shape: rt.shape.Name(), Problems: problems}
			}
			continue
		}

		if err := r.safeExecute(ctx, rt, Message{Raw: raw, Doc: doc}); err != nil {
			if r.logger != nil {
				r.logger.Error("Handler error",
					"route", rt.name,
					"error", err,
				)
			}
			return goerr.Wrap(err, "route handler failed", goerr.V("route", rt.name))
		}
		return nil
	}

	if decodeErr != nil {
		if r.logger != nil {
			r.logger.Error("Message failed shape validation",
				"shape", decodeErr.Shape,
				"problems", decodeErr.Problems,
			)
		}
		return decodeErr
	}
	return nil
}

func (r *messageRouter) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		result[i] = RouteInfo{Name: rt.name, Shape: rt.shape.Name()}
	}
	return result
}

// safeExecute runs a handler with panic recovery
func (r *messageRouter) safeExecute(ctx context.Context, rt route, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = goerr.New("handler panic", goerr.V("route", rt.name), goerr.V("panic", rec))
			if r.logger != nil {
				r.logger.Error("Handler panic recovered",
					"route", rt.name,
					"panic", rec,
				)
			}
		}
	}()

	return rt.handler(ctx, msg)
}

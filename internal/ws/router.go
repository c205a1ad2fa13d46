package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

var ErrUnknownEvent = errors.New("unknown event")

var validate = validator.New()

// ConnContext is what a handler knows about the connection it serves.
type ConnContext struct {
	RoomID string
	UserID string

	// left is set once the member left on purpose, so closing the
	// connection does not start a disconnect grace period.
	left atomic.Bool
}

func (c *ConnContext) markLeft()    { c.left.Store(true) }
func (c *ConnContext) hasLeft() bool { return c.left.Load() }

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error)

// Router keeps a map[event]handler, à-la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds an event to a strongly-typed handler. Request bodies are
// decoded and validated before h runs.
func Register[Req any, Res any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) (Res, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, &requestError{err: err}
			}
		}
		if err := validate.Struct(req); err != nil {
			return nil, &requestError{err: err}
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownEvent
	}
	return h(ctx, c, env.Body)
}

// requestError marks a body that could not be decoded or validated.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

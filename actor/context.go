// Package actor implements activation lifecycle, per-turn context
// propagation, and supervision (spec §4.7).
package actor

import "context"

// Context carries the logical identity of the turn currently executing
// on an activation: which actor, which call correlates to which request,
// and a mutable metadata bag a handler may stash ad hoc values into.
// Nested contexts (a turn that calls into another actor re-entrantly)
// form a LIFO stack so a suspended turn's context is exactly restored
// when control returns to it.
type Context struct {
	ActorID       string
	ActorType     string
	CorrelationID string
	RequestID     string
	Metadata      map[string]string

	parent *Context
}

// NewContext returns a root Context for a fresh turn.
func NewContext(actorType, actorID, correlationID, requestID string) *Context {
	return &Context{
		ActorType:     actorType,
		ActorID:       actorID,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Metadata:      map[string]string{},
	}
}

// Push returns a child Context inheriting this one's identity fields,
// linked so Pop can restore the parent.
func (c *Context) Push(requestID string) *Context {
	return &Context{
		ActorID:       c.ActorID,
		ActorType:     c.ActorType,
		CorrelationID: c.CorrelationID,
		RequestID:     requestID,
		Metadata:      map[string]string{},
		parent:        c,
	}
}

// Pop returns the context this one was pushed from, or nil at the root.
func (c *Context) Pop() *Context {
	return c.parent
}

type ctxKey struct{}

// WithContext attaches ac to std, for propagation across asynchronous
// suspensions within a turn (spec §4.7).
func WithContext(std context.Context, ac *Context) context.Context {
	return context.WithValue(std, ctxKey{}, ac)
}

// FromContext recovers the Context previously attached by WithContext.
func FromContext(std context.Context) (*Context, bool) {
	ac, ok := std.Value(ctxKey{}).(*Context)
	return ac, ok
}

package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type actionIDKey struct{}
type sessionIDKey struct{}

// WithActionID attaches an action id to the context.
func WithActionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actionIDKey{}, id)
}

// ActionID returns the action id if present.
func ActionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actionIDKey{}).(string)
	return id, ok
}

// EnsureActionID ensures an action id exists in the context.
func EnsureActionID(ctx context.Context) (context.Context, string) {
	if id, ok := ActionID(ctx); ok {
		return ctx, id
	}
	id := newActionID()
	return WithActionID(ctx, id), id
}

// WithSessionID attaches a session id to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the session id if present.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok
}

func newActionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "act-unknown"
	}
	return "act-" + hex.EncodeToString(buf)
}

// Package requestid carries a request correlation id through contexts so the
// gateway's incoming id is forwarded on calls to the store API.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the id
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh random id
func New() string {
	return uuid.NewString()
}

// NewContext returns a copy of ctx carrying id
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id carried by ctx, if any
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

package entities

import "context"

// Identity carries ids already authenticated upstream. It is used for analytics
// attribution and rate limiting only.
type Identity struct {
	UserID    string
	SessionID string
	ClientIP  string
}

// Key returns the most specific identifier available
func (i Identity) Key() string {
	switch {
	case i.UserID != "":
		return "user:" + i.UserID
	case i.SessionID != "":
		return "session:" + i.SessionID
	default:
		return "ip:" + i.ClientIP
	}
}

type identityKey struct{}

// ContextWithIdentity stores the caller identity on the context
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or the zero value
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

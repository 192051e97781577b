package interceptors

import "context"

type contextKey struct{ name string }

var (
	accountIDKey = contextKey{"account_id"}
	identityKey  = contextKey{"identity"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated account id and identity.
// Handlers read them via GetAccountID and GetIdentity.
func WithIdentity(ctx context.Context, accountID, identity string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	ctx = context.WithValue(ctx, identityKey, identity)
	return ctx
}

// GetAccountID returns the account id from context and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	return v, ok
}

// GetIdentity returns the authenticated identity from context and true if set; otherwise "", false.
func GetIdentity(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityKey).(string)
	return v, ok
}

// WithClientIP returns a context carrying ip. Used by the HTTP middleware; gRPC derives the IP
// from metadata and peer instead.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

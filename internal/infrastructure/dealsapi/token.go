package dealsapi

import "context"

type tokenKey struct{}

// WithToken returns a context carrying the caller's session token
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the session token stored by WithToken
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// StaticToken is a fixed token, typically from configuration
type StaticToken string

// Token implements domain.TokenProvider
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// ForwardedToken sends the end user's token taken from the request context,
// falling back to Default when the request carried none.
type ForwardedToken struct {
	Default string
}

// Token implements domain.TokenProvider
func (f ForwardedToken) Token(ctx context.Context) (string, error) {
	if token, ok := TokenFromContext(ctx); ok {
		return token, nil
	}
	return f.Default, nil
}

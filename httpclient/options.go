package httpclient

import "context"

type optionsKey struct{}

type requestOptions struct {
	skipAuth          bool // No bearer header, 401 is returned as is (login, signup)
	skipErrorRedirect bool // The caller renders 400/423/500 itself
	retried           bool // Already replayed once after a refresh
}

func optionsFrom(ctx context.Context) requestOptions {
	if o, ok := ctx.Value(optionsKey{}).(requestOptions); ok {
		return o
	}
	return requestOptions{}
}

func withOptions(ctx context.Context, update func(*requestOptions)) context.Context {
	o := optionsFrom(ctx)
	update(&o)
	return context.WithValue(ctx, optionsKey{}, o)
}

// WithSkipAuth marks requests made with ctx as anonymous
func WithSkipAuth(ctx context.Context) context.Context {
	return withOptions(ctx, func(o *requestOptions) { o.skipAuth = true })
}

// WithSkipErrorRedirect keeps the error router from handling failures of requests
// made with ctx
func WithSkipErrorRedirect(ctx context.Context) context.Context {
	return withOptions(ctx, func(o *requestOptions) { o.skipErrorRedirect = true })
}

func withRetried(ctx context.Context) context.Context {
	return withOptions(ctx, func(o *requestOptions) { o.retried = true })
}

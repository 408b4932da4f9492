// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import "context"

// CallContext provides request-scoped information to procedure handlers.
type CallContext struct {
	// RequestID identifies this call; over HTTP it is taken from the
	// X-Stitch-Request-Id header or minted by the server, and echoed in the
	// response.
	RequestID string
	// Procedure is the name of the procedure being invoked.
	Procedure string
	// Kind is the declared kind of the procedure.
	Kind Kind
}

// requestIDKey is an unexported context key for the request identifier.
type requestIDKey struct{}

// WithRequestID returns a context carrying the given request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom extracts the request identifier from a context, or ""
// when none was attached.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

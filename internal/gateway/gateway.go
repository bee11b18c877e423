// Package gateway wraps the external model provider behind a single
// synchronous call. The worker pool is the only caller; everything about
// the provider's wire format stays inside this package.
package gateway

import "context"

// Gateway performs one completion request against the model provider.
type Gateway interface {
	// Complete sends the prompt and returns the generated text.
	// Returns apperror.ErrUpstream (carrying the provider's status and
	// body) on any non-success response.
	Complete(ctx context.Context, prompt string) (string, error)
}

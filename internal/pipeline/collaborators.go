package pipeline

import (
	"context"

	"github.com/scanforge/serialscan/internal/validator"
)

// Submitter receives the accepted serial at the end of a session.
// Submission errors are surfaced to the caller but never reopen the
// session.
type Submitter interface {
	Submit(ctx context.Context, result validator.Result) error
}

// Confirmer resolves borderline decisions with an explicit yes/no,
// typically by prompting the user.
type Confirmer interface {
	Confirm(ctx context.Context, result validator.Result) (bool, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, result validator.Result) error

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, result validator.Result) error {
	return f(ctx, result)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, result validator.Result) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, result validator.Result) (bool, error) {
	return f(ctx, result)
}

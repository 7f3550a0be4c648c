package client

import "context"

// StepUpHandler is notified when the panel signals that elevated risk
// requires secondary verification. A web front end wires navigation to the
// step-up screen into this; the CLI prints instructions. The handler is a
// side effect only: the failing request's error still propagates to its
// caller, and no automatic retry is attempted.
type StepUpHandler interface {
	StepUpRequired(ctx context.Context, methods []string)
}

// StepUpHandlerFunc adapts a function to the StepUpHandler interface.
type StepUpHandlerFunc func(ctx context.Context, methods []string)

// StepUpRequired calls f.
func (f StepUpHandlerFunc) StepUpRequired(ctx context.Context, methods []string) {
	f(ctx, methods)
}

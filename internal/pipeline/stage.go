package pipeline

import "context"

// Handler is the contract every stage implements. ShouldRun decides whether
// the stage applies to this run; ValidateInputs checks preconditions before
// any work starts; Execute does the work; OnError runs after Execute fails
// for good so the stage can release partial state.
type Handler interface {
	ShouldRun(ctx context.Context, pc *Context) (bool, error)
	ValidateInputs(ctx context.Context, pc *Context) error
	Execute(ctx context.Context, pc *Context) error
	OnError(ctx context.Context, pc *Context, err error)
}

// Stage pairs a handler with its pipeline position metadata. Optional stages
// degrade the run on failure instead of aborting it.
type Stage struct {
	Name     string
	Optional bool
	Handler  Handler
}

// BaseHandler provides default no-op implementations so stages only override
// the methods they need.
type BaseHandler struct{}

func (BaseHandler) ShouldRun(context.Context, *Context) (bool, error) { return true, nil }

func (BaseHandler) ValidateInputs(context.Context, *Context) error { return nil }

func (BaseHandler) OnError(context.Context, *Context, error) {}

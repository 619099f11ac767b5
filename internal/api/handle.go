package api

import (
	"context"
)

// Handle is a cooperative cancellation token owned by the caller.
//
// One handle belongs to one in-flight request. Cancelling it before the
// request settles makes the call return a *CancelledError. Cancelling it
// afterwards has no effect on the settled result.
type Handle struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewHandle returns a fresh, uncancelled handle.
func NewHandle() *Handle {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Handle{ctx: ctx, cancel: cancel}
}

// Cancel requests that the request using this handle be abandoned.
// It is safe to call at any time and more than once.
func (h *Handle) Cancel() {
	h.CancelWithCause(nil)
}

// CancelWithCause is Cancel with a cause that the resulting
// *CancelledError unwraps to. A nil cause reports context.Canceled.
func (h *Handle) CancelWithCause(cause error) {
	if h == nil {
		return
	}
	h.cancel(cause)
}

// Done is closed once the handle has been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h.ctx.Err() != nil
}

// Err returns the cancellation cause, or nil while the handle is live.
func (h *Handle) Err() error {
	if h.ctx.Err() == nil {
		return nil
	}
	return context.Cause(h.ctx)
}

// bind derives a request context that ends when either parent or the
// handle is cancelled. The returned release func detaches the handle; after
// it runs, cancelling the handle no longer reaches the request.
func (h *Handle) bind(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(h.ctx, func() {
		cancel(context.Cause(h.ctx))
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// cancelCause reports why a call must settle as cancelled. The handle is
// checked directly because its propagation into ctx is asynchronous.
func cancelCause(ctx context.Context, h *Handle) error {
	if cause := h.Err(); cause != nil {
		return cause
	}
	return cancellation(ctx)
}

// cancellation returns the cause when ctx has ended, nil otherwise.
func cancellation(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

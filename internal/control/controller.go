// Package control implements the Run Controller: lifecycle state,
// cooperative cancellation, pause/resume, and the approval rendezvous a
// Tool Executor blocks on while a policy decision is pending.
package control

import (
	"context"
	"sync"
)

// ErrCancelled is returned by guards once the controller has been cancelled.
type ErrCancelled struct{ Reason string }

func (e *ErrCancelled) Error() string {
	if e.Reason == "" {
		return "run cancelled"
	}
	return "run cancelled: " + e.Reason
}

// Controller holds one run's cancellation token, pause state, stop flag, and
// the pending approval rendezvous for in-flight tool calls.
//
// Once cancel() has been called the controller is terminal: every
// subsequent guard fails immediately, mirroring spec §4.A's "once
// cancelled, the controller is terminal" rule.
type Controller struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	reason string

	paused       bool
	resumeC      chan struct{} // closed and replaced on every resume()
	stopRequested bool

	pending map[string]chan bool // callId -> approval channel
}

// New creates a Controller bound to a parent context; cancelling the parent
// also cancels the controller.
func New(parent context.Context) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		ctx:     ctx,
		cancel:  cancel,
		resumeC: make(chan struct{}),
		pending: make(map[string]chan bool),
	}
}

// Signal returns the observable cancellation token; any long operation
// should select on Done().
func (c *Controller) Signal() context.Context {
	return c.ctx
}

// Cancelled reports whether cancel() has already fired.
func (c *Controller) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel aborts the token, resolves every pending approval as denied, and
// wakes any pause-waiters. Idempotent.
func (c *Controller) Cancel(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	pending := c.pending
	c.pending = make(map[string]chan bool)
	wasPaused := c.paused
	if wasPaused {
		c.paused = false
		close(c.resumeC)
		c.resumeC = make(chan struct{})
	}
	c.mu.Unlock()

	c.cancel()

	for _, ch := range pending {
		select {
		case ch <- false:
		default:
		}
		close(ch)
	}
}

// Reason returns the reason passed to the call to Cancel that won the race,
// or "" if not yet cancelled.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Pause toggles the controller into the paused state. No-op if already
// paused or if the controller is terminal.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Cancelled() || c.paused {
		return
	}
	c.paused = true
}

// Resume releases every pause-waiter (FIFO, via channel close) and clears
// the paused flag. No-op if not paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeC)
	c.resumeC = make(chan struct{})
}

// Stop sets the advisory stopRequested flag; engines read it between steps
// and convert it into a graceful exit rather than an abrupt one.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
}

// StopRequested reports whether Stop() has been called.
func (c *Controller) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

// WaitIfPaused returns immediately unless paused, in which case it blocks
// until Resume() or Cancel() is observed.
func (c *Controller) WaitIfPaused() error {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return c.ctx.Err()
		}
		waitC := c.resumeC
		c.mu.Unlock()

		select {
		case <-waitC:
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

// RequestApproval registers a pending approval for callId and returns a
// function that blocks until ResolveApproval(callId, ...) is called or the
// run is cancelled (which resolves it false). Returns a resolver that
// always yields false immediately if the controller is already cancelled.
func (c *Controller) RequestApproval(callID string) func(ctx context.Context) bool {
	c.mu.Lock()
	if c.Cancelled() {
		c.mu.Unlock()
		return func(context.Context) bool { return false }
	}
	ch := make(chan bool, 1)
	c.pending[callID] = ch
	c.mu.Unlock()

	return func(ctx context.Context) bool {
		select {
		case v, ok := <-ch:
			if !ok {
				return false
			}
			return v
		case <-ctx.Done():
			return false
		case <-c.ctx.Done():
			return false
		}
	}
}

// ResolveApproval answers a pending approval request. No-op if no such
// request is pending (already resolved, or never requested).
func (c *Controller) ResolveApproval(callID string, allowed bool) {
	c.mu.Lock()
	ch, ok := c.pending[callID]
	if ok {
		delete(c.pending, callID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- allowed
	close(ch)
}

// ToolCancelledError is raised by GuardToolExecution when the controller is
// already terminal.
type ToolCancelledError struct{ Name string }

func (e *ToolCancelledError) Error() string { return "tool cancelled: " + e.Name }

// GuardToolExecution implements the per-tool-call guard of spec §4.A: fail
// immediately if cancelled, otherwise block on pause, then re-check
// cancellation once more before returning.
func (c *Controller) GuardToolExecution(name string) error {
	if c.Cancelled() {
		return &ToolCancelledError{Name: name}
	}
	if err := c.WaitIfPaused(); err != nil {
		return &ToolCancelledError{Name: name}
	}
	if c.Cancelled() {
		return &ToolCancelledError{Name: name}
	}
	return nil
}

package supervisor

import (
	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/control"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// Run is one live, in-flight invocation of the supervisor, matching spec
// §6's Supervisor surface: an async event stream, a result future, and
// pause/resume/stop/cancel/approve controls. In preview mode it also
// exposes CommitPreview/DiscardPreview over the run's shared overlay.
type Run struct {
	RunID string

	controller *control.Controller
	bus        *bus.Bus
	resultC    <-chan Result
	preview    *workspace.Preview
}

// Events returns a channel of every event emitted by this run, from the
// point of the call onward.
func (r *Run) Events() <-chan events.AgentEvent { return r.bus.Iterate() }

// Result blocks until the run reaches a terminal state and returns it.
// Safe to call once; a second call on an already-drained Run blocks
// forever, matching a future's single-resolution contract.
func (r *Run) Result() Result { return <-r.resultC }

// Pause suspends the run before its next suspension point.
func (r *Run) Pause() { r.controller.Pause() }

// Resume releases a paused run.
func (r *Run) Resume() { r.controller.Resume() }

// Stop requests a graceful exit at the next step boundary.
func (r *Run) Stop() { r.controller.Stop() }

// Cancel aborts the run immediately, with reason recorded as the
// controller's terminal cause.
func (r *Run) Cancel(reason string) { r.controller.Cancel(reason) }

// ApproveToolCall resolves a pending tool_approval_request for callID.
func (r *Run) ApproveToolCall(callID string, allowed bool) {
	r.controller.ResolveApproval(callID, allowed)
}

// ErrNotPreviewMode is returned by CommitPreview/DiscardPreview when the
// run was not started in preview mode.
type ErrNotPreviewMode struct{}

func (ErrNotPreviewMode) Error() string { return "run is not in preview mode" }

// CommitPreview applies every buffered mutation to the base workspace.
// Only valid in preview mode.
func (r *Run) CommitPreview() error {
	if r.preview == nil {
		return ErrNotPreviewMode{}
	}
	return r.preview.Commit()
}

// DiscardPreview drops every buffered mutation without touching the base
// workspace. Only valid in preview mode.
func (r *Run) DiscardPreview() error {
	if r.preview == nil {
		return ErrNotPreviewMode{}
	}
	r.preview.Discard()
	return nil
}

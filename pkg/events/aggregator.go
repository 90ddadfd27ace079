package events

// ToolCallAggregator joins tool_call/tool_result pairs by ID and thinking/
// text deltas into the session-update compatibility hook of spec §6: a
// caller migrating off of a chat-session SDK can drive onMessage/onThought/
// onToolCall from a unified run without re-deriving the join itself.
type ToolCallAggregator struct {
	pending  map[string]ToolCall
	OnToolCall func(toolName string, argsJSON, resultJSON []byte)
	OnMessage  func(text string)
	OnThought  func(text string)
}

// NewToolCallAggregator creates an aggregator with no callbacks set; set
// the exported fields before calling Observe.
func NewToolCallAggregator() *ToolCallAggregator {
	return &ToolCallAggregator{pending: make(map[string]ToolCall)}
}

// Observe feeds one event through the aggregator, invoking whichever
// callback applies. Call this from a Bus subscriber or iteration loop.
func (a *ToolCallAggregator) Observe(ev AgentEvent) {
	switch ev.Kind {
	case KindTextDelta:
		if a.OnMessage != nil {
			a.OnMessage(ev.Text)
		}
	case KindThinkingDelta:
		if a.OnThought != nil {
			a.OnThought(ev.Text)
		}
	case KindToolCall:
		if ev.Call != nil {
			a.pending[ev.Call.ID] = *ev.Call
		}
	case KindToolResult:
		if ev.Result == nil {
			return
		}
		call, ok := a.pending[ev.Result.ID]
		if !ok {
			return
		}
		delete(a.pending, ev.Result.ID)
		if a.OnToolCall != nil {
			a.OnToolCall(call.ToolName, call.Args, ev.Result.Result)
		}
	}
}

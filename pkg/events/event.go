// Package events defines the unified, tagged-union event model emitted by a
// run of the agent supervisor.
package events

import "time"

// Kind identifies the variant carried by an AgentEvent.
type Kind string

const (
	KindRunStart            Kind = "run_start"
	KindStatus              Kind = "status"
	KindThinkingDelta       Kind = "thinking_delta"
	KindTextDelta           Kind = "text_delta"
	KindToolCall            Kind = "tool_call"
	KindToolResult          Kind = "tool_result"
	KindToolApprovalRequest Kind = "tool_approval_request"
	KindFileChange          Kind = "file_change"
	KindMemoryRead          Kind = "memory_read"
	KindMemoryWrite         Kind = "memory_write"
	KindRetrievalQuery      Kind = "retrieval_query"
	KindRetrievalResults    Kind = "retrieval_results"
	KindStepFinish          Kind = "step_finish"
	KindUsage               Kind = "usage"
	KindError               Kind = "error"
	KindRunFinish           Kind = "run_finish"
)

// RunStatus is the lifecycle state carried by a Status payload and tracked
// by the Run Controller.
type RunStatus string

const (
	StatusInitialising RunStatus = "initialising"
	StatusThinking      RunStatus = "thinking"
	StatusResponding    RunStatus = "responding"
	StatusActing        RunStatus = "acting"
	StatusPaused        RunStatus = "paused"
	StatusStopping      RunStatus = "stopping"
	StatusFinished       RunStatus = "finished"
	StatusError          RunStatus = "error"
)

// FinishReason is the terminal reason attached to run_finish and to the
// supervisor's result.
type FinishReason string

const (
	FinishStop       FinishReason = "stop"
	FinishLength     FinishReason = "length"
	FinishToolCalls  FinishReason = "tool_calls"
	FinishCancelled  FinishReason = "cancelled"
	FinishError      FinishReason = "error"
	FinishOther      FinishReason = "other"
)

// FileChangeKind enumerates the kinds of file effect a workspace tool can
// produce.
type FileChangeKind string

const (
	FileChangeCreate    FileChangeKind = "create"
	FileChangeUpdate    FileChangeKind = "update"
	FileChangeDelete    FileChangeKind = "delete"
	FileChangeRename    FileChangeKind = "rename"
	FileChangePatchHunk FileChangeKind = "patch_hunk"
)

// Meta carries optional cross-cutting identifiers attached uniformly to
// every event.
type Meta struct {
	AgentID  string `json:"agent_id,omitempty"`
	StepID   string `json:"step_id,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Trace    string `json:"trace,omitempty"`
}

// ToolCall is a single tool invocation emitted by a provider engine.
type ToolCall struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	Args     []byte `json:"args"`
}

// ToolResult answers a ToolCall by the same ID.
type ToolResult struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	Result   []byte `json:"result"`
	IsError  bool   `json:"is_error"`
}

// ToolApprovalRequest is emitted when a policy decision requires a human
// or caller-supplied yes/no before a tool runs.
type ToolApprovalRequest struct {
	Call   ToolCall `json:"call"`
	Reason string   `json:"reason"`
	Policy string   `json:"policy"`
}

// FileChange describes one workspace mutation observed between a tool's
// call and result.
type FileChange struct {
	Kind     FileChangeKind `json:"kind"`
	Path     string         `json:"path"`
	ToPath   string         `json:"to_path,omitempty"`
	Preview  bool           `json:"preview"`
	HunkIdx  int            `json:"hunk_index,omitempty"`
	HunkCnt  int            `json:"hunk_count,omitempty"`
}

// StepFinish closes out one model turn of the tool loop.
type StepFinish struct {
	Index        int          `json:"index"`
	FinishReason FinishReason `json:"finish_reason"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
}

// Usage reports token accounting for one run, when the backend supplies it.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// AgentEvent is the single tagged-union event emitted throughout a run.
// Exactly one payload field is populated for a given Kind; consumers
// pattern-match on Kind alone.
type AgentEvent struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
	Meta *Meta     `json:"meta,omitempty"`

	RunID    string `json:"run_id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Status RunStatus `json:"status,omitempty"`
	Detail string    `json:"detail,omitempty"`

	Text string `json:"text,omitempty"`

	Call                *ToolCall            `json:"call,omitempty"`
	Result              *ToolResult          `json:"result,omitempty"`
	ApprovalRequest     *ToolApprovalRequest `json:"approval_request,omitempty"`
	Change              *FileChange          `json:"change,omitempty"`

	MemoryKey   string `json:"key,omitempty"`
	MemoryValue []byte `json:"value,omitempty"`

	RetrievalQuery string `json:"query,omitempty"`
	RetrievalTopK  int    `json:"top_k,omitempty"`
	RetrievalItems []RetrievedItem `json:"items,omitempty"`

	Step *StepFinish `json:"step,omitempty"`
	Use  *Usage      `json:"usage,omitempty"`

	Err    string       `json:"error,omitempty"`
	Raw    error        `json:"-"`
	Reason FinishReason `json:"reason,omitempty"`
}

// RetrievedItem is one hit returned by a Retriever.
type RetrievedItem struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

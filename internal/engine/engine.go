// Package engine implements the Provider Engine contract: a
// backend-agnostic multi-step tool loop driver. Concrete backends (see
// anthropic.go, openai.go, bedrock.go, gemini.go, ollama.go) each supply
// one model turn; Engine supplies the shared loop, event emission,
// pause/cancel handling, and tool-call dispatch, generalizing the
// teacher's agent.AgenticLoop state machine to any Backend.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/emmett08/unified-agent-sdk/internal/control"
	"github.com/emmett08/unified-agent-sdk/internal/observability"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// Role identifies the speaker of one Message in a Request's history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one backend-agnostic conversation turn. Assistant messages
// may carry ToolCalls; tool messages answer a prior call by ToolCallID.
type Message struct {
	Role       Role
	Text       string
	ToolCalls  []events.ToolCall
	ToolCallID string // set on RoleTool messages
}

// ToolSpec describes one tool definition in backend-agnostic form, for
// backends to translate into their own function/tool schema.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is the backend-agnostic input to one engine run, per spec §4.L.
type Request struct {
	RunID       string
	Provider    string
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
	MaxSteps    int
	Metadata    map[string]any
}

// Deps are the per-run collaborators an Engine needs to drive the loop.
type Deps struct {
	Controller   *control.Controller
	ToolExecutor *toolexec.Executor
}

// Result is the terminal outcome of a run, delivered once on Run.Result.
type Result struct {
	FinishReason events.FinishReason
	Messages     []Message
	Usage        *events.Usage
	Err          error
}

// Run is a live engine execution: events stream out, Result resolves once,
// and Close releases both channels if the caller abandons the run early.
type Run struct {
	Events <-chan events.AgentEvent
	Result <-chan Result
	cancel context.CancelFunc
}

// Close aborts the run's context; safe to call after the run has already
// finished.
func (r *Run) Close() { r.cancel() }

// StepOutput is what one Backend turn produces: the text and/or tool
// calls the model emitted, and its reported finish condition.
type StepOutput struct {
	ThinkingText string
	Text         string
	ToolCalls    []events.ToolCall
	FinishReason events.FinishReason
	Usage        *events.Usage
}

// Backend executes exactly one model turn against history and returns
// what the model produced. Implementations hold their own SDK client and
// translate Request/Message/ToolSpec into their wire format internally.
type Backend interface {
	Step(ctx context.Context, req Request, history []Message) (StepOutput, error)
}

// Engine drives Backend through spec §4.L's multi-step tool loop.
type Engine struct {
	backend Backend

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New wraps backend in an Engine.
func New(backend Backend) *Engine {
	return &Engine{backend: backend}
}

// WithObservability attaches logging, metrics, and tracing to the engine's
// step loop. Any of the three may be nil, in which case that concern is
// skipped; an Engine with no observability attached behaves exactly as
// before. Returns e for chaining at construction time.
func (e *Engine) WithObservability(logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Engine {
	e.logger = logger
	e.metrics = metrics
	e.tracer = tracer
	return e
}

const defaultMaxSteps = 10

// Run starts the engine loop in a goroutine and returns immediately with
// a live Run; events arrive on Run.Events and the terminal Result arrives
// exactly once on Run.Result.
func (e *Engine) Run(ctx context.Context, req Request, deps Deps) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	evCh := make(chan events.AgentEvent, 256)
	resCh := make(chan Result, 1)

	go e.drive(runCtx, req, deps, evCh, resCh)

	return &Run{Events: evCh, Result: resCh, cancel: cancel}
}

func (e *Engine) drive(ctx context.Context, req Request, deps Deps, evCh chan<- events.AgentEvent, resCh chan<- Result) {
	defer close(evCh)
	defer close(resCh)

	emit := func(ev events.AgentEvent) {
		ev.RunID = req.RunID
		ev.Provider = req.Provider
		ev.Model = req.Model
		select {
		case evCh <- ev:
		case <-ctx.Done():
		}
	}

	emit(events.AgentEvent{Kind: events.KindRunStart, At: time.Now()})
	emit(events.AgentEvent{Kind: events.KindStatus, At: time.Now(), Status: events.StatusThinking})

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	history := append([]Message(nil), req.Messages...)
	var lastUsage *events.Usage
	var finish events.FinishReason = events.FinishOther

	for step := 0; step < maxSteps; step++ {
		if deps.Controller.Cancelled() {
			finish = events.FinishCancelled
			break
		}
		if err := deps.Controller.WaitIfPaused(); err != nil {
			finish = events.FinishCancelled
			break
		}
		if deps.Controller.StopRequested() {
			finish = events.FinishStop
			break
		}

		out, err := e.stepWithObservability(ctx, req, history)
		if err != nil {
			emit(events.AgentEvent{Kind: events.KindError, At: time.Now(), Err: err.Error(), Raw: err})
			reason := events.FinishError
			if deps.Controller.Cancelled() {
				reason = events.FinishCancelled
			}
			emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), Reason: reason})
			resCh <- Result{FinishReason: reason, Messages: history, Err: err}
			return
		}
		lastUsage = out.Usage

		if out.ThinkingText != "" {
			emit(events.AgentEvent{Kind: events.KindThinkingDelta, At: time.Now(), Text: out.ThinkingText})
		}
		if out.Text != "" {
			emit(events.AgentEvent{Kind: events.KindTextDelta, At: time.Now(), Text: out.Text})
		}

		assistantMsg := Message{Role: RoleAssistant, Text: out.Text, ToolCalls: out.ToolCalls}
		history = append(history, assistantMsg)

		if len(out.ToolCalls) == 0 {
			finish = out.FinishReason
			if finish == "" {
				finish = events.FinishStop
			}
			emit(events.AgentEvent{Kind: events.KindStepFinish, At: time.Now(), Step: &events.StepFinish{Index: step, FinishReason: finish}})
			break
		}

		emit(events.AgentEvent{Kind: events.KindStatus, At: time.Now(), Status: events.StatusActing})
		toolResults := make([]events.ToolResult, 0, len(out.ToolCalls))
		for _, call := range out.ToolCalls {
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			result, execErr := deps.ToolExecutor.ExecuteFromProvider(ctx, call.ToolName, call.Args, call.ID)
			if execErr != nil {
				result = events.ToolResult{ID: call.ID, ToolName: call.ToolName, Result: []byte(execErr.Error()), IsError: true}
			}
			toolResults = append(toolResults, result)
			history = append(history, Message{Role: RoleTool, Text: string(result.Result), ToolCallID: result.ID})
		}

		emit(events.AgentEvent{
			Kind: events.KindStepFinish,
			At:   time.Now(),
			Step: &events.StepFinish{Index: step, FinishReason: events.FinishToolCalls, ToolCalls: out.ToolCalls, ToolResults: toolResults},
		})
		emit(events.AgentEvent{Kind: events.KindStatus, At: time.Now(), Status: events.StatusThinking})

		if step == maxSteps-1 {
			finish = events.FinishLength
		}
	}

	if deps.Controller.Cancelled() {
		finish = events.FinishCancelled
	}

	if lastUsage != nil {
		emit(events.AgentEvent{Kind: events.KindUsage, At: time.Now(), Use: lastUsage})
		if e.metrics != nil && lastUsage.TotalTokens > 0 {
			e.metrics.RecordContextWindow(req.Provider, req.Model, lastUsage.TotalTokens)
		}
	}
	emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), Reason: finish})
	resCh <- Result{FinishReason: finish, Messages: history, Usage: lastUsage}
}

// stepWithObservability wraps one Backend.Step call with a trace span
// (when a Tracer is attached), a latency/token metric recording (when a
// Metrics is attached), and a structured log line (when a Logger is
// attached). With none attached it is exactly e.backend.Step.
func (e *Engine) stepWithObservability(ctx context.Context, req Request, history []Message) (StepOutput, error) {
	stepCtx := ctx
	var span trace.Span
	if e.tracer != nil {
		stepCtx, span = e.tracer.TraceLLMRequest(ctx, req.Provider, req.Model)
		defer span.End()
	}

	start := time.Now()
	out, err := e.backend.Step(stepCtx, req, history)
	elapsed := time.Since(start)

	if span != nil && err != nil {
		e.tracer.RecordError(span, err)
	}

	if e.metrics != nil {
		status := "success"
		prompt, completion := 0, 0
		if err != nil {
			status = "error"
		} else if out.Usage != nil {
			prompt, completion = out.Usage.InputTokens, out.Usage.OutputTokens
		}
		e.metrics.RecordLLMRequest(req.Provider, req.Model, status, elapsed.Seconds(), prompt, completion)
	}

	if e.logger != nil {
		if err != nil {
			e.logger.Error(ctx, "engine step failed",
				"run_id", req.RunID, "provider", req.Provider, "model", req.Model, "error", err)
		} else {
			e.logger.Debug(ctx, "engine step completed",
				"run_id", req.RunID, "provider", req.Provider, "model", req.Model,
				"duration_ms", elapsed.Milliseconds(), "tool_calls", len(out.ToolCalls))
		}
	}

	return out, err
}

// ErrUnsupportedBackend is returned by a backend constructor when its
// required configuration is missing.
type ErrUnsupportedBackend struct{ Reason string }

func (e *ErrUnsupportedBackend) Error() string { return fmt.Sprintf("unsupported backend: %s", e.Reason) }

// Package toolexec implements the Tool Executor: policy-gated,
// approval-aware dispatch of provider tool calls, adapted from the
// teacher's agent.ToolExecutor concurrency/timeout harness combined with
// the tools/policy Resolver's allow/deny/ask decision flow.
package toolexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/control"
	"github.com/emmett08/unified-agent-sdk/internal/memorypool"
	"github.com/emmett08/unified-agent-sdk/internal/observability"
	"github.com/emmett08/unified-agent-sdk/internal/toolname"
	"github.com/emmett08/unified-agent-sdk/internal/toolpolicy"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// Definition is one invocable tool: its provider-facing contract plus
// its capability tags, which the policy consults to decide allow/deny/ask.
// Execute receives the per-run ExecutionContext by value rather than a
// back-pointer to the executor or bus, per spec §9's cyclic-reference note.
type Definition interface {
	Name() string
	Capabilities() []string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, execCtx ExecutionContext) (json.RawMessage, error)
}

// ExecutionContext is the per-run state a tool's Execute may need.
type ExecutionContext struct {
	Workspace workspace.Port
	Memory    *memorypool.Scope
	Metadata  map[string]any
}

// ToolDenied is raised when a call is refused before invocation: unknown
// tool, policy deny, or a denied approval.
type ToolDenied struct {
	ToolName string
	Reason   string
}

func (e *ToolDenied) Error() string {
	return fmt.Sprintf("tool denied: %s: %s", e.ToolName, e.Reason)
}

// Executor implements spec §4.H's executeFromProvider algorithm.
type Executor struct {
	defs           map[string]Definition
	policy         toolpolicy.Policy
	controller     *control.Controller
	bus            *bus.Bus
	execCtx        ExecutionContext
	emitToolEvents bool
	mapping        *toolname.Mapping

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	schemaMu    sync.Mutex
	schemaCache map[string]*jsonschema.Schema
}

// WithObservability attaches logging, metrics, and tracing to the
// executor's invoke step. Any of the three may be nil; an Executor with
// none attached behaves exactly as before. Returns e for chaining.
func (e *Executor) WithObservability(logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Executor {
	e.logger = logger
	e.metrics = metrics
	e.tracer = tracer
	return e
}

// New builds an Executor over defs, gated by policy and controller, with
// tool lifecycle events published to eventBus. emitToolEvents should be
// false when the provider engine already emits tool_call/tool_result
// pairs natively, to avoid duplicate events on the bus. mapping may be
// nil when tool names are passed through unchanged (e.g. toolname.Strict
// mode, or tests); when non-nil, ExecuteFromProvider translates an
// incoming provider-facing name back to its original before dispatch.
func New(defs []Definition, policy toolpolicy.Policy, controller *control.Controller, eventBus *bus.Bus, execCtx ExecutionContext, emitToolEvents bool, mapping *toolname.Mapping) *Executor {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name()] = d
	}
	return &Executor{
		defs:           byName,
		policy:         policy,
		controller:     controller,
		bus:            eventBus,
		execCtx:        execCtx,
		emitToolEvents: emitToolEvents,
		mapping:        mapping,
		schemaCache:    make(map[string]*jsonschema.Schema),
	}
}

// ExecuteFromProvider runs one provider-issued tool call through lookup,
// cancellation/pause guarding, policy decision, approval rendezvous, and
// invocation, per spec §4.H. Denial conditions surface as *ToolDenied;
// any failure raised by the tool itself is converted to an
// events.ToolResult with IsError set rather than propagated, so the
// provider loop always sees a result to continue from.
func (e *Executor) ExecuteFromProvider(ctx context.Context, providerName string, args json.RawMessage, callID string) (events.ToolResult, error) {
	toolName := providerName
	if e.mapping != nil {
		if original, ok := e.mapping.OriginalName(providerName); ok {
			toolName = original
		}
	}

	def, ok := e.defs[toolName]
	if !ok {
		e.recordDenial(ctx, toolName, "unknown_tool")
		return events.ToolResult{}, &ToolDenied{ToolName: toolName, Reason: "Unknown tool"}
	}

	if err := e.controller.GuardToolExecution(toolName); err != nil {
		e.recordDenial(ctx, toolName, "cancelled_or_paused")
		return events.ToolResult{}, err
	}

	call := events.ToolCall{ID: callID, ToolName: toolName, Args: args}

	decision, rejectingPolicy := decide(e.policy, toolName, def.Capabilities())
	switch decision {
	case toolpolicy.Deny:
		e.recordDenial(ctx, toolName, "policy_deny")
		return events.ToolResult{}, &ToolDenied{ToolName: toolName, Reason: "Policy denied: " + rejectingPolicy}
	case toolpolicy.Ask:
		e.bus.Emit(events.AgentEvent{
			Kind: events.KindToolApprovalRequest,
			At:   time.Now(),
			ApprovalRequest: &events.ToolApprovalRequest{
				Call:   call,
				Reason: "capability requires approval",
				Policy: rejectingPolicy,
			},
		})
		wait := e.controller.RequestApproval(callID)
		if !wait(ctx) {
			e.recordDenial(ctx, toolName, "approval_denied")
			return events.ToolResult{}, &ToolDenied{ToolName: toolName, Reason: "User denied"}
		}
	}

	if e.emitToolEvents {
		e.bus.Emit(events.AgentEvent{Kind: events.KindToolCall, At: time.Now(), Call: &call})
	}

	var result events.ToolResult
	if msg := e.validateArgs(def, args); msg != "" {
		result = events.ToolResult{ID: call.ID, ToolName: call.ToolName, Result: []byte(msg), IsError: true}
	} else {
		result = e.invoke(ctx, def, call)
	}

	if e.emitToolEvents {
		e.bus.Emit(events.AgentEvent{Kind: events.KindToolResult, At: time.Now(), Result: &result})
	}

	return result, nil
}

// recordDenial records a tool-denial outcome against the attached
// Metrics/Logger, when present.
func (e *Executor) recordDenial(ctx context.Context, toolName, reason string) {
	if e.metrics != nil {
		e.metrics.RecordError("tool", reason)
	}
	if e.logger != nil {
		e.logger.Warn(ctx, "tool call denied", "tool", toolName, "reason", reason)
	}
}

// invoke calls def.Execute and converts any raised error into an
// error-flagged ToolResult, per spec §4.H step 5. The call is wrapped
// with a trace span, a duration/outcome metric, and a log line whenever
// the corresponding observability collaborator is attached.
func (e *Executor) invoke(ctx context.Context, def Definition, call events.ToolCall) events.ToolResult {
	invokeCtx := ctx
	var span trace.Span
	if e.tracer != nil {
		invokeCtx, span = e.tracer.TraceToolExecution(ctx, call.ToolName)
		defer span.End()
	}

	start := time.Now()
	out, err := def.Execute(invokeCtx, call.Args, e.execCtx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.RecordToolExecution(call.ToolName, status, elapsed.Seconds())
	}
	if span != nil && err != nil {
		e.tracer.RecordError(span, err)
	}
	if e.logger != nil {
		if err != nil {
			e.logger.Warn(ctx, "tool execution failed", "tool", call.ToolName, "call_id", call.ID, "error", err)
		} else {
			e.logger.Debug(ctx, "tool execution completed", "tool", call.ToolName, "call_id", call.ID, "duration_ms", elapsed.Milliseconds())
		}
	}

	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordError("tool", call.ToolName)
		}
		return events.ToolResult{ID: call.ID, ToolName: call.ToolName, Result: []byte(err.Error()), IsError: true}
	}
	return events.ToolResult{ID: call.ID, ToolName: call.ToolName, Result: out}
}

// decide consults policy, preferring Reasoned.DecideWithReason so a
// Composite's rejection can be attributed to the sub-policy responsible.
func decide(policy toolpolicy.Policy, toolName string, capabilities []string) (toolpolicy.Decision, string) {
	if r, ok := policy.(toolpolicy.Reasoned); ok {
		return r.DecideWithReason(toolName, capabilities)
	}
	d := policy.Decide(toolName, capabilities)
	if n, ok := policy.(toolpolicy.Named); ok {
		return d, n.PolicyName()
	}
	return d, fmt.Sprintf("%T", policy)
}

// validateArgs compiles (and caches) def's declared InputSchema and
// validates args against it, returning a human-readable message if args
// are malformed, or "" if args are valid or the tool declares no schema.
// This runs before tool.execute, per SPEC_FULL.md §DOMAIN STACK D.4 — an
// addition beyond spec.md's silence on schema validation.
func (e *Executor) validateArgs(def Definition, args json.RawMessage) string {
	raw := def.InputSchema()
	if len(raw) == 0 {
		return ""
	}
	schema, err := e.compiledSchema(def.Name(), raw)
	if err != nil {
		return fmt.Sprintf("invalid tool schema for %s: %v", def.Name(), err)
	}
	var payload any
	if len(args) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(args, &payload); err != nil {
		return fmt.Sprintf("invalid JSON arguments for %s: %v", def.Name(), err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Sprintf("invalid arguments for %s: %v", def.Name(), err)
	}
	return ""
}

func (e *Executor) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()
	if s, ok := e.schemaCache[name]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	e.schemaCache[name] = schema
	return schema, nil
}

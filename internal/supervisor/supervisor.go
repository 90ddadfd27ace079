// Package supervisor implements the Run Supervisor (spec §4.M): the
// top-level orchestrator that assembles tools, resolves the Tool Name
// Policy, builds a candidate RoutePlan via the Model Router, and drives
// each candidate's Provider Engine with Journal/Preview workspace
// wrapping and Circuit Breaker-aware failover, adapted from the
// teacher's own top-level agent-loop wiring (internal/agent/loop.go)
// generalized from one fixed provider to an ordered candidate plan.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emmett08/unified-agent-sdk/internal/breaker"
	"github.com/emmett08/unified-agent-sdk/internal/builtintools"
	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/catalog"
	"github.com/emmett08/unified-agent-sdk/internal/configstore"
	"github.com/emmett08/unified-agent-sdk/internal/control"
	"github.com/emmett08/unified-agent-sdk/internal/engine"
	"github.com/emmett08/unified-agent-sdk/internal/memorypool"
	"github.com/emmett08/unified-agent-sdk/internal/observability"
	"github.com/emmett08/unified-agent-sdk/internal/router"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/internal/toolname"
	"github.com/emmett08/unified-agent-sdk/internal/toolpolicy"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// WorkspaceMode selects whether a run's file effects land directly (Live)
// or are buffered for explicit commit/discard (Preview), per spec §6.
type WorkspaceMode int

const (
	Live WorkspaceMode = iota
	Preview
)

// Options carries one run's input, matching spec §6's Supervisor surface.
type Options struct {
	Prompt   string
	Messages []engine.Message
	System   string

	RoutePreference  router.Preference
	RouteConstraints router.Constraints

	Temperature *float64
	MaxTokens   int
	MaxSteps    int

	Workspace     workspace.Port
	WorkspaceMode WorkspaceMode

	Policy       toolpolicy.Policy
	ToolNameMode toolname.Mode
	UserTools    []toolexec.Definition
	Retriever    builtintools.Retriever

	Metadata map[string]any

	OnEvent         func(events.AgentEvent)
	OnThinkingDelta func(string)
	OnTextDelta     func(string)
}

// Result is the terminal outcome of a run, delivered once on Run.Result().
type Result struct {
	RunID        string
	FinishReason events.FinishReason
	Text         string
	Messages     []engine.Message
	Usage        *events.Usage
	Err          error
}

// EngineRegistry resolves a provider ID to the Engine driving its
// backend. A provider is available iff it has an entry here (per spec
// §4.M step 4, "available iff its configuration carries its minimum
// credentials" — absence from the registry models missing credentials).
type EngineRegistry map[string]*engine.Engine

// Supervisor owns the shared, cross-run collaborators: the Model
// Catalog, Circuit Breaker, engine registry, and optional persisted
// ConfigStore for the breaker snapshot.
type Supervisor struct {
	Catalog  *catalog.Catalog
	Breaker  *breaker.Breaker
	Engines  EngineRegistry
	Store    configstore.Store
	Memory   *memorypool.Pool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	loadOnce   sync.Once
	persistJob chan func()
	persistWG  sync.WaitGroup
}

// WithObservability attaches logging, metrics, and tracing collaborators.
// Any of the three may be nil; a Supervisor with none attached behaves
// exactly as before. The same collaborators are propagated to every
// per-attempt Engine and Tool Executor this Supervisor constructs.
// Returns s for chaining at construction time.
func (s *Supervisor) WithObservability(logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Supervisor {
	s.Logger = logger
	s.Metrics = metrics
	s.Tracer = tracer
	return s
}

// New builds a Supervisor. breakerParams zero-value uses
// breaker.DefaultParams(); store may be nil to disable persistence.
func New(cat *catalog.Catalog, breakerParams breaker.Params, engines EngineRegistry, store configstore.Store, memory *memorypool.Pool) *Supervisor {
	s := &Supervisor{
		Catalog:    cat,
		Breaker:    breaker.New(breakerParams),
		Engines:    engines,
		Store:      store,
		Memory:     memory,
		persistJob: make(chan func(), 64),
	}
	s.persistWG.Add(1)
	go s.persistLoop()
	return s
}

// persistLoop runs persistence jobs strictly in submission order, so
// overlapping runs never interleave breaker snapshot writes (spec §4.M,
// "serialized via a sequential queue").
func (s *Supervisor) persistLoop() {
	defer s.persistWG.Done()
	for job := range s.persistJob {
		job()
	}
}

// Close stops the persistence worker after draining queued jobs. Safe to
// call once all in-flight runs have finished.
func (s *Supervisor) Close() {
	close(s.persistJob)
	s.persistWG.Wait()
}

// Run allocates a run id, Controller, and Bus, then launches
// runWithFailover asynchronously, returning a live *Run immediately.
func (s *Supervisor) Run(ctx context.Context, opts Options) *Run {
	runID := uuid.NewString()
	ctrl := control.New(ctx)
	eventBus := bus.New()

	if opts.OnEvent != nil {
		eventBus.Subscribe(func(ev events.AgentEvent) { opts.OnEvent(ev) })
	}
	if opts.OnThinkingDelta != nil {
		eventBus.Subscribe(func(ev events.AgentEvent) {
			if ev.Kind == events.KindThinkingDelta {
				opts.OnThinkingDelta(ev.Text)
			}
		})
	}
	if opts.OnTextDelta != nil {
		eventBus.Subscribe(func(ev events.AgentEvent) {
			if ev.Kind == events.KindTextDelta {
				opts.OnTextDelta(ev.Text)
			}
		})
	}

	resultC := make(chan Result, 1)
	run := &Run{
		RunID:      runID,
		controller: ctrl,
		bus:        eventBus,
		resultC:    resultC,
	}

	var preview *workspace.Preview
	if opts.WorkspaceMode == Preview {
		preview = workspace.NewPreview(opts.Workspace)
		run.preview = preview
	}

	go s.runWithFailover(ctx, runID, ctrl, eventBus, preview, opts, resultC)

	return run
}

// runWithFailover implements spec §4.M's eight-step algorithm.
func (s *Supervisor) runWithFailover(ctx context.Context, runID string, ctrl *control.Controller, eventBus *bus.Bus, preview *workspace.Preview, opts Options, resultC chan<- Result) {
	defer close(resultC)

	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.Start(ctx, "supervisor.run", observability.SpanOptions{
			Attributes: []attribute.KeyValue{attribute.String("run.id", runID)},
		})
		defer span.End()
	}
	if s.Logger != nil {
		s.Logger.Info(ctx, "run started", "run_id", runID)
	}

	previewMode := opts.WorkspaceMode == Preview

	available := s.availability()

	s.loadOnce.Do(func() { s.loadBreakerSnapshot(ctx) })

	now := time.Now()
	score := func(c router.Candidate) int64 {
		var latencyRank, costRank int
		if c.Profile != nil {
			latencyRank, costRank = c.Profile.LatencyRank, c.Profile.CostRank
		}
		return int64(latencyRank)*10 + int64(costRank) + s.Breaker.GetPenalty(c.Ref, now)
	}
	pref := opts.RoutePreference
	plan := router.Plan(s.Catalog, available, pref, opts.RouteConstraints, score)

	// The Supervisor owns the single run-level run_start/run_finish
	// bracket (spec §8 invariant 1); per-attempt run_start/run_finish
	// events from each candidate's Engine are filtered out of the
	// forwarded stream by forwardRemapped below. run_start is therefore
	// emitted here, before any other event, carrying the first planned
	// candidate's provider/model (the one actually attempted first).
	startEvent := events.AgentEvent{Kind: events.KindRunStart, At: time.Now(), RunID: runID}
	if len(plan) > 0 {
		startEvent.Provider, startEvent.Model = plan[0].Provider, plan[0].Model
	}
	eventBus.Emit(startEvent)

	rawTools := s.assembleTools(eventBus, previewMode, opts)

	names := make([]string, len(rawTools))
	for i, t := range rawTools {
		names[i] = t.Name()
	}
	mapping, err := toolname.Resolve(opts.ToolNameMode, names)
	if err != nil {
		eventBus.Emit(events.AgentEvent{Kind: events.KindError, At: time.Now(), RunID: runID, Err: err.Error(), Raw: err})
		eventBus.Emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), RunID: runID, Reason: events.FinishError})
		eventBus.Close(err.Error())
		resultC <- Result{RunID: runID, FinishReason: events.FinishError, Err: fmt.Errorf("tool name policy: %w", err)}
		return
	}

	providerTools := make([]engine.ToolSpec, len(rawTools))
	for i, t := range rawTools {
		providerName, _ := mapping.ProviderName(t.Name())
		providerTools[i] = engine.ToolSpec{Name: providerName, Schema: t.InputSchema()}
	}

	history := normalizeMessages(opts)

	refs := make([]string, len(plan))
	for i, c := range plan {
		refs[i] = c.Ref
	}
	eventBus.Emit(events.AgentEvent{
		Kind: events.KindStatus, At: time.Now(), RunID: runID,
		Status: events.StatusInitialising, Detail: "candidates: " + strings.Join(refs, ", "),
	})

	var lastErr error
	for _, candidate := range plan {
		if ctrl.Cancelled() {
			break
		}

		attemptWS, commit, rollback := s.attemptWorkspace(opts, preview, previewMode)
		execCtx := toolexec.ExecutionContext{
			Workspace: attemptWS,
			Memory:    s.Memory.Scoped(runID),
			Metadata:  opts.Metadata,
		}
		// emitToolEvents=true: the Executor is the sole emitter of
		// tool_call/tool_result on the unified stream (spec §8
		// invariant 2, §5 ordering, scenarios S1/S2); it publishes
		// directly onto the outer eventBus using already-resolved
		// original tool names, so no remapping is needed downstream.
		executor := toolexec.New(rawTools, opts.Policy, ctrl, eventBus, execCtx, true, mapping).
			WithObservability(s.Logger, s.Metrics, s.Tracer)

		eng, ok := s.Engines[candidate.Provider]
		if !ok {
			lastErr = fmt.Errorf("provider unavailable: %s", candidate.Provider)
			s.recordFailure(candidate.Ref, now)
			if s.Metrics != nil {
				s.Metrics.RecordRunAttempt("failed")
				s.Metrics.RecordError("supervisor", "provider_unavailable")
			}
			if s.Logger != nil {
				s.Logger.Warn(ctx, "candidate provider unavailable", "run_id", runID, "ref", candidate.Ref)
			}
			continue
		}
		eng.WithObservability(s.Logger, s.Metrics, s.Tracer)

		req := engine.Request{
			RunID: runID, Provider: candidate.Provider, Model: candidate.Model,
			System: opts.System, Messages: history, Tools: providerTools,
			Temperature: opts.Temperature, MaxTokens: opts.MaxTokens, MaxSteps: opts.MaxSteps,
			Metadata: opts.Metadata,
		}
		run := eng.Run(ctx, req, engine.Deps{Controller: ctrl, ToolExecutor: executor})

		forwardRemapped(eventBus, run.Events, mapping)
		result := <-run.Result

		if result.Err == nil {
			commit()
			s.Breaker.RecordSuccess(candidate.Ref)
			s.persistBreakerAsync()
			if s.Metrics != nil {
				s.Metrics.RecordRunAttempt("success")
			}
			if s.Logger != nil {
				s.Logger.Info(ctx, "run finished", "run_id", runID, "ref", candidate.Ref, "finish_reason", result.FinishReason)
			}
			remapped := remapMessages(result.Messages, mapping)
			finalText := lastAssistantText(remapped)
			eventBus.Emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), RunID: runID, Reason: result.FinishReason})
			eventBus.Close(string(result.FinishReason))
			resultC <- Result{RunID: runID, FinishReason: result.FinishReason, Text: finalText, Messages: remapped, Usage: result.Usage}
			return
		}

		lastErr = result.Err
		rollback()
		s.recordFailure(candidate.Ref, now)
		s.persistBreakerAsync()
		if s.Metrics != nil {
			s.Metrics.RecordRunAttempt("retry")
			s.Metrics.RecordError("supervisor", "attempt_failed")
		}
		if s.Logger != nil {
			s.Logger.Warn(ctx, "candidate attempt failed, rolling back", "run_id", runID, "ref", candidate.Ref, "error", result.Err)
		}
	}

	if ctrl.Cancelled() {
		if s.Metrics != nil {
			s.Metrics.RecordRunAttempt("cancelled")
		}
		eventBus.Emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), RunID: runID, Reason: events.FinishCancelled})
		eventBus.Close("cancelled")
		resultC <- Result{RunID: runID, FinishReason: events.FinishCancelled}
		return
	}

	err = fmt.Errorf("all provider candidates failed: %w", lastErr)
	if s.Metrics != nil {
		s.Metrics.RecordRunAttempt("failed")
		s.Metrics.RecordError("supervisor", "all_candidates_failed")
	}
	if s.Logger != nil {
		s.Logger.Error(ctx, "all provider candidates failed", "run_id", runID, "error", err)
	}
	eventBus.Emit(events.AgentEvent{Kind: events.KindError, At: time.Now(), RunID: runID, Err: err.Error(), Raw: err})
	eventBus.Emit(events.AgentEvent{Kind: events.KindRunFinish, At: time.Now(), RunID: runID, Reason: events.FinishError})
	eventBus.Close(err.Error())
	resultC <- Result{RunID: runID, FinishReason: events.FinishError, Err: err}
}

func (s *Supervisor) recordFailure(ref string, now time.Time) {
	s.Breaker.RecordFailure(ref, now)
}

// attemptWorkspace wraps opts.Workspace for one attempt: a fresh Journal
// in live mode (so a failed attempt rolls back independently), or the
// single shared Preview overlay reused across attempts in preview mode.
func (s *Supervisor) attemptWorkspace(opts Options, preview *workspace.Preview, previewMode bool) (workspace.Port, func(), func()) {
	if previewMode {
		return preview, func() {}, func() { preview.Discard() }
	}
	journal := workspace.NewJournal(opts.Workspace)
	return journal, journal.Commit, journal.Rollback
}

func (s *Supervisor) assembleTools(eventBus *bus.Bus, previewMode bool, opts Options) []toolexec.Definition {
	tools := []toolexec.Definition{
		builtintools.NewFSReadFile(),
		builtintools.NewFSWriteFile(eventBus, previewMode),
		builtintools.NewFSDeletePath(eventBus, previewMode),
		builtintools.NewFSRenamePath(eventBus, previewMode),
		builtintools.NewFSApplyPatch(eventBus, previewMode),
		builtintools.NewMemoryGet(eventBus),
		builtintools.NewMemorySet(eventBus),
	}
	if opts.Retriever != nil {
		tools = append(tools, builtintools.NewRetrieveContext(eventBus, opts.Retriever))
	}
	tools = append(tools, opts.UserTools...)
	return tools
}

// availability reports which of Supervisor's registered providers are
// currently usable (spec §4.M step 4): every engine in the registry is
// considered available, since constructing one already requires its
// minimum credentials (see internal/engine's NewXBackend constructors).
func (s *Supervisor) availability() map[string]bool {
	out := make(map[string]bool, len(s.Engines))
	for provider := range s.Engines {
		out[provider] = true
	}
	return out
}

func (s *Supervisor) loadBreakerSnapshot(ctx context.Context) {
	if s.Store == nil {
		return
	}
	raw, err := s.Store.Load(ctx, configstore.BreakerSnapshotKey)
	if err != nil || raw == nil {
		return
	}
	var snap breaker.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return
	}
	s.Breaker.Restore(snap)
}

func (s *Supervisor) persistBreakerAsync() {
	if s.Store == nil {
		return
	}
	snap := s.Breaker.Snapshot()
	s.persistJob <- func() {
		raw, err := json.Marshal(snap)
		if err != nil {
			return
		}
		_ = s.Store.Save(context.Background(), configstore.BreakerSnapshotKey, raw)
	}
}

// normalizeMessages prepends opts.System (if set) and drops any
// embedded system-role messages from opts.Messages, per spec §4.M step 3.
func normalizeMessages(opts Options) []engine.Message {
	var history []engine.Message
	for _, m := range opts.Messages {
		if m.Role == engine.RoleSystem {
			continue
		}
		history = append(history, m)
	}
	if opts.Prompt != "" {
		history = append(history, engine.Message{Role: engine.RoleUser, Text: opts.Prompt})
	}
	return history
}

// forwardRemapped copies engine-emitted events onto the outer bus,
// rewriting provider-facing tool names back to their originals on
// tool_call, tool_result, and step_finish, per spec §4.M step 7. Each
// candidate's Engine emits its own run_start/run_finish bracketing that
// attempt (spec §4.L step 1/4); those are dropped here rather than
// forwarded, since the Supervisor emits exactly one run_start/run_finish
// for the whole run regardless of how many attempts failover takes
// (spec §8 invariant 1).
func forwardRemapped(out *bus.Bus, in <-chan events.AgentEvent, mapping *toolname.Mapping) {
	for ev := range in {
		if ev.Kind == events.KindRunStart || ev.Kind == events.KindRunFinish {
			continue
		}
		remapEvent(&ev, mapping)
		out.Emit(ev)
	}
}

func remapEvent(ev *events.AgentEvent, mapping *toolname.Mapping) {
	if ev.Call != nil {
		remapCall(ev.Call, mapping)
	}
	if ev.Result != nil {
		remapResult(ev.Result, mapping)
	}
	if ev.Step != nil {
		for i := range ev.Step.ToolCalls {
			remapCall(&ev.Step.ToolCalls[i], mapping)
		}
		for i := range ev.Step.ToolResults {
			remapResult(&ev.Step.ToolResults[i], mapping)
		}
	}
}

func remapCall(c *events.ToolCall, mapping *toolname.Mapping) {
	if original, ok := mapping.OriginalName(c.ToolName); ok {
		c.ToolName = original
	}
}

func remapResult(r *events.ToolResult, mapping *toolname.Mapping) {
	if original, ok := mapping.OriginalName(r.ToolName); ok {
		r.ToolName = original
	}
}

func lastAssistantText(history []engine.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == engine.RoleAssistant && history[i].Text != "" {
			return history[i].Text
		}
	}
	return ""
}

// remapMessages rewrites provider-facing tool names embedded in assistant
// ToolCalls back to their originals, so a run's final Result never leaks
// provider-facing names to the caller.
func remapMessages(history []engine.Message, mapping *toolname.Mapping) []engine.Message {
	for i := range history {
		for j := range history[i].ToolCalls {
			remapCall(&history[i].ToolCalls[j], mapping)
		}
	}
	return history
}

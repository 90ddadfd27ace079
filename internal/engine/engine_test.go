package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/control"
	"github.com/emmett08/unified-agent-sdk/internal/observability"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/internal/toolpolicy"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// fakeBackend scripts a fixed sequence of StepOutputs, one per call.
type fakeBackend struct {
	steps []StepOutput
	calls int
}

func (f *fakeBackend) Step(context.Context, Request, []Message) (StepOutput, error) {
	out := f.steps[f.calls]
	f.calls++
	return out, nil
}

type echoTool struct{}

func (echoTool) Name() string                   { return "echo" }
func (echoTool) Capabilities() []string         { return nil }
func (echoTool) InputSchema() json.RawMessage   { return nil }
func (echoTool) Execute(_ context.Context, args json.RawMessage, _ toolexec.ExecutionContext) (json.RawMessage, error) {
	return args, nil
}

func newTestDeps() Deps {
	ctrl := control.New(context.Background())
	executor := toolexec.New([]toolexec.Definition{echoTool{}}, toolpolicy.AllowAll{}, ctrl, bus.New(), toolexec.ExecutionContext{}, false, nil)
	return Deps{Controller: ctrl, ToolExecutor: executor}
}

func collectEvents(run *Run) []events.AgentEvent {
	var out []events.AgentEvent
	for ev := range run.Events {
		out = append(out, ev)
	}
	return out
}

func TestEngine_StopsWhenNoToolCalls(t *testing.T) {
	backend := &fakeBackend{steps: []StepOutput{{Text: "hello", FinishReason: events.FinishStop}}}
	e := New(backend)
	deps := newTestDeps()

	run := e.Run(context.Background(), Request{RunID: "r1", Model: "m"}, deps)
	evs := collectEvents(run)
	result := <-run.Result

	require.Equal(t, events.FinishStop, result.FinishReason)
	require.Equal(t, 1, backend.calls)
	require.Equal(t, events.KindRunStart, evs[0].Kind)
	require.Equal(t, events.KindRunFinish, evs[len(evs)-1].Kind)
}

func TestEngine_RunsToolLoopUntilNoMoreCalls(t *testing.T) {
	backend := &fakeBackend{steps: []StepOutput{
		{ToolCalls: []events.ToolCall{{ID: "c1", ToolName: "echo", Args: json.RawMessage(`{"x":1}`)}}},
		{Text: "done", FinishReason: events.FinishStop},
	}}
	e := New(backend)
	deps := newTestDeps()

	run := e.Run(context.Background(), Request{RunID: "r1", Model: "m"}, deps)
	evs := collectEvents(run)
	result := <-run.Result

	require.Equal(t, events.FinishStop, result.FinishReason)
	require.Equal(t, 2, backend.calls)

	var sawToolCall bool
	for _, ev := range evs {
		if ev.Kind == events.KindStepFinish && ev.Step.FinishReason == events.FinishToolCalls {
			sawToolCall = true
			require.Len(t, ev.Step.ToolResults, 1)
			require.False(t, ev.Step.ToolResults[0].IsError)
		}
	}
	require.True(t, sawToolCall)
}

func TestEngine_CancelStopsLoopAsCancelled(t *testing.T) {
	backend := &fakeBackend{steps: []StepOutput{
		{ToolCalls: []events.ToolCall{{ID: "c1", ToolName: "echo", Args: json.RawMessage(`{}`)}}},
		{ToolCalls: []events.ToolCall{{ID: "c2", ToolName: "echo", Args: json.RawMessage(`{}`)}}},
		{Text: "unreachable", FinishReason: events.FinishStop},
	}}
	e := New(backend)
	deps := newTestDeps()
	deps.Controller.Cancel("user requested stop")

	run := e.Run(context.Background(), Request{RunID: "r1", Model: "m"}, deps)
	_ = collectEvents(run)
	result := <-run.Result
	require.Equal(t, events.FinishCancelled, result.FinishReason)
}

func TestEngine_MaxStepsTruncatesWithLengthReason(t *testing.T) {
	loopStep := StepOutput{ToolCalls: []events.ToolCall{{ID: "c", ToolName: "echo", Args: json.RawMessage(`{}`)}}}
	backend := &fakeBackend{steps: []StepOutput{loopStep, loopStep, loopStep}}
	e := New(backend)
	deps := newTestDeps()

	run := e.Run(context.Background(), Request{RunID: "r1", Model: "m", MaxSteps: 2}, deps)
	_ = collectEvents(run)
	result := <-run.Result
	require.Equal(t, events.FinishLength, result.FinishReason)
	require.Equal(t, 2, backend.calls)
}

func TestEngine_RecordsLLMRequestMetricWhenObservabilityAttached(t *testing.T) {
	registry := prometheus.NewRegistry()
	reqCounter := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{Name: "test_engine_llm_requests_total", Help: "test"}, []string{"provider", "model", "status"})
	reqDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_engine_llm_duration_seconds", Help: "test"}, []string{"provider", "model"})
	tokens := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{Name: "test_engine_llm_tokens_total", Help: "test"}, []string{"provider", "model", "type"})
	metrics := &observability.Metrics{
		LLMRequestCounter:  reqCounter,
		LLMRequestDuration: reqDuration,
		LLMTokensUsed:      tokens,
	}

	backend := &fakeBackend{steps: []StepOutput{{
		Text: "hi", FinishReason: events.FinishStop,
		Usage: &events.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}}}
	e := New(backend).WithObservability(nil, metrics, nil)
	deps := newTestDeps()

	run := e.Run(context.Background(), Request{RunID: "r1", Provider: "anthropic", Model: "m"}, deps)
	_ = collectEvents(run)
	<-run.Result

	require.Equal(t, float64(1), testutil.ToFloat64(reqCounter.WithLabelValues("anthropic", "m", "success")))
	require.Equal(t, float64(10), testutil.ToFloat64(tokens.WithLabelValues("anthropic", "m", "prompt")))
}

func TestEngine_CloseAbortsRunContext(t *testing.T) {
	backend := &fakeBackend{steps: []StepOutput{{Text: "hi", FinishReason: events.FinishStop}}}
	e := New(backend)
	deps := newTestDeps()
	run := e.Run(context.Background(), Request{RunID: "r1", Model: "m"}, deps)
	run.Close()
	select {
	case <-run.Result:
	case <-time.After(time.Second):
		t.Fatal("run did not finish after Close")
	}
}

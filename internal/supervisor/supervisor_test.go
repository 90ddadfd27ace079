package supervisor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/breaker"
	"github.com/emmett08/unified-agent-sdk/internal/catalog"
	"github.com/emmett08/unified-agent-sdk/internal/engine"
	"github.com/emmett08/unified-agent-sdk/internal/memorypool"
	"github.com/emmett08/unified-agent-sdk/internal/router"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/internal/toolname"
	"github.com/emmett08/unified-agent-sdk/internal/toolpolicy"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// scriptedBackend drives one fake provider turn per entry in steps,
// matching the fakeBackend pattern in internal/engine's own tests.
type scriptedBackend struct {
	steps []engine.StepOutput
	calls int
}

func (b *scriptedBackend) Step(context.Context, engine.Request, []engine.Message) (engine.StepOutput, error) {
	out := b.steps[b.calls]
	b.calls++
	return out, nil
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Capabilities() []string       { return nil }
func (echoTool) InputSchema() json.RawMessage { return nil }
func (echoTool) Execute(_ context.Context, args json.RawMessage, _ toolexec.ExecutionContext) (json.RawMessage, error) {
	return args, nil
}

func newTestSupervisor(t *testing.T, backend *scriptedBackend) (*Supervisor, workspace.Port) {
	t.Helper()

	cat := catalog.New()
	cat.Register(catalog.Profile{
		ProviderID: "fake", ModelID: "m1",
		Classes:      []catalog.Class{catalog.ClassDefault},
		Capabilities: catalog.Capabilities{Streaming: true, Tools: true},
	})

	engines := EngineRegistry{"fake": engine.New(backend)}
	memory := memorypool.New(memorypool.Options{})
	sup := New(cat, breaker.DefaultParams(), engines, nil, memory)
	t.Cleanup(sup.Close)

	ws := workspace.NewLocal(t.TempDir())
	return sup, ws
}

func collectRunEvents(run *Run) []events.AgentEvent {
	var out []events.AgentEvent
	for ev := range run.Events() {
		out = append(out, ev)
	}
	return out
}

func TestRunWithFailover_EmitsExactlyOneRunStartAndRunFinish(t *testing.T) {
	backend := &scriptedBackend{steps: []engine.StepOutput{
		{Text: "done", FinishReason: events.FinishStop},
	}}
	sup, ws := newTestSupervisor(t, backend)

	run := sup.Run(context.Background(), Options{
		Prompt:        "hi",
		Workspace:     ws,
		WorkspaceMode: Live,
		Policy:        toolpolicy.AllowAll{},
		ToolNameMode:  toolname.Strict,
		RoutePreference: router.Preference{
			ExplicitProvider: "fake", ExplicitModel: "m1", AllowFallback: true,
		},
	})

	evs := collectRunEvents(run)
	result := run.Result()

	require.NoError(t, result.Err)
	require.Equal(t, events.FinishStop, result.FinishReason)
	require.NotEmpty(t, evs)
	require.Equal(t, events.KindRunStart, evs[0].Kind)
	require.Equal(t, events.KindRunFinish, evs[len(evs)-1].Kind)

	var runStarts, runFinishes int
	for _, ev := range evs {
		switch ev.Kind {
		case events.KindRunStart:
			runStarts++
		case events.KindRunFinish:
			runFinishes++
		}
	}
	require.Equal(t, 1, runStarts)
	require.Equal(t, 1, runFinishes)
}

func TestRunWithFailover_EmitsToolCallAndToolResult(t *testing.T) {
	backend := &scriptedBackend{steps: []engine.StepOutput{
		{ToolCalls: []events.ToolCall{{ID: "c1", ToolName: "echo", Args: json.RawMessage(`{"x":1}`)}}},
		{Text: "done", FinishReason: events.FinishStop},
	}}
	sup, ws := newTestSupervisor(t, backend)

	run := sup.Run(context.Background(), Options{
		Prompt:        "hi",
		Workspace:     ws,
		WorkspaceMode: Live,
		Policy:        toolpolicy.AllowAll{},
		ToolNameMode:  toolname.Strict,
		UserTools:     []toolexec.Definition{echoTool{}},
		RoutePreference: router.Preference{
			ExplicitProvider: "fake", ExplicitModel: "m1", AllowFallback: true,
		},
	})

	evs := collectRunEvents(run)
	_ = run.Result()

	var callIdx, resultIdx = -1, -1
	for i, ev := range evs {
		if ev.Kind == events.KindToolCall && callIdx == -1 {
			callIdx = i
			require.Equal(t, "echo", ev.Call.ToolName)
		}
		if ev.Kind == events.KindToolResult && resultIdx == -1 {
			resultIdx = i
			require.Equal(t, "echo", ev.Result.ToolName)
		}
	}
	require.NotEqual(t, -1, callIdx, "expected a tool_call event on the unified stream")
	require.NotEqual(t, -1, resultIdx, "expected a tool_result event on the unified stream")
	require.Less(t, callIdx, resultIdx, "tool_call must precede its tool_result")
}

func TestRunWithFailover_FailoverDoesNotDuplicateRunBracket(t *testing.T) {
	succeeding := &scriptedBackend{steps: []engine.StepOutput{
		{Text: "done", FinishReason: events.FinishStop},
	}}

	cat := catalog.New()
	cat.Register(catalog.Profile{ProviderID: "bad", ModelID: "m1", Classes: []catalog.Class{catalog.ClassDefault}})
	cat.Register(catalog.Profile{ProviderID: "good", ModelID: "m1", Classes: []catalog.Class{catalog.ClassDefault}, LatencyRank: 1})

	engines := EngineRegistry{
		"bad":  engine.New(failingBackend{}),
		"good": engine.New(succeeding),
	}
	memory := memorypool.New(memorypool.Options{})
	sup := New(cat, breaker.DefaultParams(), engines, nil, memory)
	t.Cleanup(sup.Close)

	ws := workspace.NewLocal(t.TempDir())
	run := sup.Run(context.Background(), Options{
		Prompt:        "hi",
		Workspace:     ws,
		WorkspaceMode: Live,
		Policy:        toolpolicy.AllowAll{},
		ToolNameMode:  toolname.Strict,
		RoutePreference: router.Preference{
			PreferredProviders: []string{"bad", "good"}, AllowFallback: true,
		},
	})

	evs := collectRunEvents(run)
	result := run.Result()

	require.NoError(t, result.Err)
	require.Equal(t, events.FinishStop, result.FinishReason)

	var runStarts, runFinishes int
	for _, ev := range evs {
		switch ev.Kind {
		case events.KindRunStart:
			runStarts++
		case events.KindRunFinish:
			runFinishes++
		}
	}
	require.Equal(t, 1, runStarts, "failover across candidates must not duplicate run_start")
	require.Equal(t, 1, runFinishes, "failover across candidates must not duplicate run_finish")
}

// failingBackend always errors on its first step, forcing the
// Supervisor to roll back and advance to the next candidate.
type failingBackend struct{}

func (failingBackend) Step(context.Context, engine.Request, []engine.Message) (engine.StepOutput, error) {
	return engine.StepOutput{}, errStepFailed{}
}

type errStepFailed struct{}

func (errStepFailed) Error() string { return "step failed" }

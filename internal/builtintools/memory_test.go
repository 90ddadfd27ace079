package builtintools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/memorypool"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

func scopedMemoryCtx() toolexec.ExecutionContext {
	pool := memorypool.New(memorypool.Options{})
	return toolexec.ExecutionContext{Memory: pool.Scoped("run-1")}
}

func TestMemorySetThenGet_RoundTripsValueAndEmitsEvents(t *testing.T) {
	ctx := scopedMemoryCtx()
	eventBus := bus.New()
	ch := eventBus.Iterate()

	setTool := NewMemorySet(eventBus)
	setArgs, _ := json.Marshal(map[string]any{"key": "k1", "value": map[string]any{"n": 1}})
	_, err := setTool.Execute(context.Background(), setArgs, ctx)
	require.NoError(t, err)

	getTool := NewMemoryGet(eventBus)
	getArgs, _ := json.Marshal(map[string]string{"key": "k1"})
	out, err := getTool.Execute(context.Background(), getArgs, ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(out))

	eventBus.Close("done")
	var kinds []events.Kind
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []events.Kind{events.KindMemoryWrite, events.KindMemoryRead}, kinds)
}

func TestMemoryGet_MissingKeyReturnsNullWithoutError(t *testing.T) {
	ctx := scopedMemoryCtx()
	eventBus := bus.New()
	tool := NewMemoryGet(eventBus)
	args, _ := json.Marshal(map[string]string{"key": "absent"})
	out, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}

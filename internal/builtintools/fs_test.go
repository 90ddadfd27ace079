package builtintools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/internal/toolexec"
	"github.com/emmett08/unified-agent-sdk/internal/workspace"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

func execCtx(t *testing.T) (toolexec.ExecutionContext, *workspace.Local) {
	t.Helper()
	local := workspace.NewLocal(t.TempDir())
	return toolexec.ExecutionContext{Workspace: local}, local
}

func drainFileChanges(b *bus.Bus, ch <-chan events.AgentEvent) []*events.FileChange {
	b.Close("done")
	var out []*events.FileChange
	for ev := range ch {
		if ev.Kind == events.KindFileChange {
			out = append(out, ev.Change)
		}
	}
	return out
}

func TestFSWriteFile_CreatesAndEmitsCreateChange(t *testing.T) {
	ctx, local := execCtx(t)
	eventBus := bus.New()
	ch := eventBus.Iterate()

	tool := NewFSWriteFile(eventBus, false)
	args, _ := json.Marshal(map[string]string{"path": "a.txt", "content": "hello"})
	out, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(out))

	data, err := local.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 1)
	require.Equal(t, events.FileChangeCreate, changes[0].Kind)
	require.False(t, changes[0].Preview)
}

func TestFSWriteFile_SecondWriteEmitsUpdateChange(t *testing.T) {
	ctx, _ := execCtx(t)
	eventBus := bus.New()
	tool := NewFSWriteFile(eventBus, true)

	args, _ := json.Marshal(map[string]string{"path": "a.txt", "content": "v1"})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	ch := eventBus.Iterate()
	args2, _ := json.Marshal(map[string]string{"path": "a.txt", "content": "v2"})
	_, err = tool.Execute(context.Background(), args2, ctx)
	require.NoError(t, err)

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 1)
	require.Equal(t, events.FileChangeUpdate, changes[0].Kind)
	require.True(t, changes[0].Preview)
}

func TestFSReadFile_RespectsMaxBytes(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("big.txt", []byte("0123456789")))

	tool := NewFSReadFile()
	args, _ := json.Marshal(map[string]any{"path": "big.txt", "maxBytes": 4})
	out, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	var got string
	require.NoError(t, json.Unmarshal(out, &got))
	require.Equal(t, "0123", got)
}

func TestFSDeletePath_EmitsDeleteChange(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("gone.txt", []byte("x")))

	eventBus := bus.New()
	ch := eventBus.Iterate()
	tool := NewFSDeletePath(eventBus, false)
	args, _ := json.Marshal(map[string]string{"path": "gone.txt"})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	st, err := local.Stat("gone.txt")
	require.NoError(t, err)
	require.Nil(t, st)

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 1)
	require.Equal(t, events.FileChangeDelete, changes[0].Kind)
}

func TestFSRenamePath_EmitsRenameChangeWithBothPaths(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("old.txt", []byte("x")))

	eventBus := bus.New()
	ch := eventBus.Iterate()
	tool := NewFSRenamePath(eventBus, false)
	args, _ := json.Marshal(map[string]string{"fromPath": "old.txt", "toPath": "new.txt"})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	data, err := local.ReadFile("new.txt")
	require.NoError(t, err)
	require.Equal(t, "x", string(data))

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 1)
	require.Equal(t, "old.txt", changes[0].Path)
	require.Equal(t, "new.txt", changes[0].ToPath)
}

func TestInputSchemas_AreValidJSONObjectsWithRequiredFields(t *testing.T) {
	tools := []toolexec.Definition{
		NewFSReadFile(),
		NewFSWriteFile(bus.New(), false),
		NewFSDeletePath(bus.New(), false),
		NewFSRenamePath(bus.New(), false),
		NewFSApplyPatch(bus.New(), false),
		NewMemoryGet(bus.New()),
		NewMemorySet(bus.New()),
	}
	for _, tool := range tools {
		raw := tool.InputSchema()
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded), "tool %s schema must be valid JSON", tool.Name())
		require.Equal(t, "object", decoded["type"], "tool %s schema must describe an object", tool.Name())
	}
}

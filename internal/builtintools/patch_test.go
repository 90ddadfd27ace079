package builtintools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emmett08/unified-agent-sdk/internal/bus"
	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

const twoHunkPatch = `--- a/file.txt
+++ b/file.txt
@@ -1,2 +1,2 @@
-one
+ONE
 two
@@ -4,2 +4,2 @@
-four
+FOUR
 five
`

func TestFSApplyPatch_WholeFileWritesOnceWithUpdateChange(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("file.txt", []byte("one\ntwo\nthree\nfour\nfive\n")))

	eventBus := bus.New()
	ch := eventBus.Iterate()
	tool := NewFSApplyPatch(eventBus, false)
	args, _ := json.Marshal(map[string]string{"patch": twoHunkPatch})
	out, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	var result patchOutput
	require.NoError(t, json.Unmarshal(out, &result))
	require.True(t, result.OK)
	require.Len(t, result.Results, 1)
	require.Equal(t, 2, result.Results[0].HunksApplied)

	data, err := local.ReadFile("file.txt")
	require.NoError(t, err)
	require.Equal(t, "ONE\ntwo\nthree\nFOUR\nfive\n", string(data))

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 1)
	require.Equal(t, events.FileChangeUpdate, changes[0].Kind)
}

func TestFSApplyPatch_IncrementalEmitsOnePatchHunkEventPerHunk(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("file.txt", []byte("one\ntwo\nthree\nfour\nfive\n")))

	eventBus := bus.New()
	ch := eventBus.Iterate()
	tool := NewFSApplyPatch(eventBus, true)
	args, _ := json.Marshal(map[string]any{"patch": twoHunkPatch, "incremental": true})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	changes := drainFileChanges(eventBus, ch)
	require.Len(t, changes, 2)
	for i, c := range changes {
		require.Equal(t, events.FileChangePatchHunk, c.Kind)
		require.Equal(t, i, c.HunkIdx)
		require.Equal(t, 2, c.HunkCnt)
		require.True(t, c.Preview)
	}
}

func TestFSApplyPatch_ReanchorsWhenDeclaredLineHasDrifted(t *testing.T) {
	ctx, local := execCtx(t)
	// An extra leading line shifts every subsequent line down by one
	// relative to the hunk's declared OldStart=1, but the context/removed
	// lines still uniquely match a window one line further down.
	require.NoError(t, local.WriteFile("file.txt", []byte("header\none\ntwo\n")))

	patch := `--- a/file.txt
+++ b/file.txt
@@ -1,2 +1,2 @@
-one
+ONE
 two
`
	eventBus := bus.New()
	tool := NewFSApplyPatch(eventBus, false)
	args, _ := json.Marshal(map[string]string{"patch": patch})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.NoError(t, err)

	data, err := local.ReadFile("file.txt")
	require.NoError(t, err)
	require.Equal(t, "header\nONE\ntwo\n", string(data))
}

func TestFSApplyPatch_NoMatchingAnchorFailsWithoutWriting(t *testing.T) {
	ctx, local := execCtx(t)
	require.NoError(t, local.WriteFile("file.txt", []byte("unrelated content\n")))

	patch := `--- a/file.txt
+++ b/file.txt
@@ -1,1 +1,1 @@
-one
+ONE
`
	eventBus := bus.New()
	tool := NewFSApplyPatch(eventBus, false)
	args, _ := json.Marshal(map[string]string{"patch": patch})
	_, err := tool.Execute(context.Background(), args, ctx)
	require.Error(t, err)

	data, err := local.ReadFile("file.txt")
	require.NoError(t, err)
	require.Equal(t, "unrelated content\n", string(data))
}

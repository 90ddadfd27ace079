package workspace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePatch = `diff --git a/a.txt b/a.txt
--- a/a.txt
+++ b/a.txt
@@ -1,3 +1,3 @@
 line one
-line two
+line TWO
 line three
`

func TestParseUnifiedDiff_SingleHunk(t *testing.T) {
	patches, err := ParseUnifiedDiff(samplePatch)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	require.Equal(t, "a.txt", patches[0].Path)
	require.Len(t, patches[0].Hunks, 1)
}

func TestApplyFilePatch_ExactAnchor(t *testing.T) {
	patches, err := ParseUnifiedDiff(samplePatch)
	require.NoError(t, err)

	content := "line one\nline two\nline three\n"
	result, err := ApplyFilePatch(content, patches[0])
	require.NoError(t, err)
	require.Equal(t, "line one\nline TWO\nline three\n", result.Content)
	require.False(t, result.Reanchored)
	require.Equal(t, 1, result.Added)
	require.Equal(t, 1, result.Removed)
}

func TestApplyFilePatch_ReanchorsAfterDrift(t *testing.T) {
	patches, err := ParseUnifiedDiff(samplePatch)
	require.NoError(t, err)

	// Two extra lines inserted above the hunk's declared OldStart=1:
	// the true anchor is now at index 2, not 0.
	content := "prefix a\nprefix b\nline one\nline two\nline three\n"
	result, err := ApplyFilePatch(content, patches[0])
	require.NoError(t, err)
	require.True(t, result.Reanchored)
	require.Equal(t, "prefix a\nprefix b\nline one\nline TWO\nline three\n", result.Content)
}

func TestApplyFilePatch_FailsWhenNoAnchorMatches(t *testing.T) {
	patches, err := ParseUnifiedDiff(samplePatch)
	require.NoError(t, err)

	content := "totally different\ncontent entirely\n"
	_, err = ApplyFilePatch(content, patches[0])
	require.Error(t, err)
}

func TestApplyFilePatch_InsertOnly(t *testing.T) {
	patch := `diff --git a/b.txt b/b.txt
--- a/b.txt
+++ b/b.txt
@@ -1,2 +1,3 @@
 alpha
+beta
 gamma
`
	patches, err := ParseUnifiedDiff(patch)
	require.NoError(t, err)

	content := "alpha\ngamma\n"
	result, err := ApplyFilePatch(content, patches[0])
	require.NoError(t, err)
	require.Equal(t, "alpha\nbeta\ngamma\n", result.Content)
	require.True(t, strings.Contains(result.Content, "beta"))
}

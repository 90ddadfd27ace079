package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreview_WritesInvisibleUntilCommit(t *testing.T) {
	dir := t.TempDir()
	base := NewLocal(dir)
	p := NewPreview(base)

	require.NoError(t, p.WriteFile("a.txt", []byte("staged")))

	_, err := os.Stat(filepath.Join(dir, "a.txt"))
	require.True(t, os.IsNotExist(err), "base must be unchanged before commit")

	data, err := p.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "staged", string(data))
}

func TestPreview_CommitAppliesToBase(t *testing.T) {
	dir := t.TempDir()
	base := NewLocal(dir)
	p := NewPreview(base)

	require.NoError(t, p.WriteFile("a.txt", []byte("staged")))
	require.NoError(t, p.Commit())

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "staged", string(data))
}

func TestPreview_DiscardLeavesBaseUnchanged(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("original"), 0o644))

	base := NewLocal(dir)
	p := NewPreview(base)

	require.NoError(t, p.WriteFile("a.txt", []byte("staged")))
	require.NoError(t, p.DeletePath("a.txt"))
	p.Discard()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "original", string(data))
}

func TestPreview_PendingDeleteFailsRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("original"), 0o644))

	base := NewLocal(dir)
	p := NewPreview(base)

	require.NoError(t, p.DeletePath("a.txt"))
	_, err := p.ReadFile("a.txt")
	require.Error(t, err)

	stat, err := p.Stat("a.txt")
	require.NoError(t, err)
	require.Nil(t, stat)
}

func TestPreview_StatOfPendingWriteIsSynthetic(t *testing.T) {
	dir := t.TempDir()
	base := NewLocal(dir)
	p := NewPreview(base)

	require.NoError(t, p.WriteFile("a.txt", []byte("12345")))
	stat, err := p.Stat("a.txt")
	require.NoError(t, err)
	require.NotNil(t, stat)
	require.True(t, stat.IsFile)
	require.EqualValues(t, 5, stat.Size)
}

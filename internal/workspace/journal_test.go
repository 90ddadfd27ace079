package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournal_RollbackRestoresWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("original"), 0o644))

	base := NewLocal(dir)
	j := NewJournal(base)

	require.NoError(t, j.WriteFile("a.txt", []byte("mutated")))
	data, err := j.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "mutated", string(data))

	j.Rollback()

	data, err = base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "original", string(data))
}

func TestJournal_RollbackRemovesCreatedFile(t *testing.T) {
	dir := t.TempDir()
	base := NewLocal(dir)
	j := NewJournal(base)

	require.NoError(t, j.WriteFile("new.txt", []byte("hello")))
	j.Rollback()

	_, err := os.Stat(filepath.Join(dir, "new.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestJournal_RollbackRestoresDeletedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("keep me"), 0o644))

	base := NewLocal(dir)
	j := NewJournal(base)

	require.NoError(t, j.DeletePath("a.txt"))
	j.Rollback()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "keep me", string(data))
}

func TestJournal_RollbackUndoesRename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0o644))

	base := NewLocal(dir)
	j := NewJournal(base)

	require.NoError(t, j.RenamePath("a.txt", "b.txt"))
	j.Rollback()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "content", string(data))

	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestJournal_CommitDiscardsEntries(t *testing.T) {
	dir := t.TempDir()
	base := NewLocal(dir)
	j := NewJournal(base)

	require.NoError(t, j.WriteFile("a.txt", []byte("final")))
	j.Commit()
	j.Rollback() // no-op: journal was cleared by Commit

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "final", string(data))
}

package filer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFiler(t *testing.T) *Filer {
	t.Helper()
	dir := t.TempDir()
	f := New(dir)
	require.NoError(t, f.EnsureStages())
	return f
}

func writeFile(t *testing.T, f *Filer, name string, stage Stage, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.Path(name, stage), []byte(content), 0o644))
}

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "archive.tar.lat", ReplaceExt("archive.tar.gz", ".lat"))
	assert.Equal(t, "document.txt", ReplaceExt("document.wav", ".txt"))
	assert.Equal(t, "noext.meta", ReplaceExt("noext", ".meta"))
}

func TestCollisionFreeName_NoCollision(t *testing.T) {
	f := newTestFiler(t)
	name, err := f.CollisionFreeName("a.wav", StageProcessed)
	require.NoError(t, err)
	assert.Equal(t, "a.wav", name)
}

func TestCollisionFreeName_Increments(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.wav", StageProcessed, "x")

	name, err := f.CollisionFreeName("a.wav", StageProcessed)
	require.NoError(t, err)
	assert.Equal(t, "a.1.wav", name)

	writeFile(t, f, "a.1.wav", StageProcessed, "x")
	name, err = f.CollisionFreeName("a.wav", StageProcessed)
	require.NoError(t, err)
	assert.Equal(t, "a.2.wav", name)
}

func TestMove_MissingSourceFails(t *testing.T) {
	f := newTestFiler(t)
	err := f.Move("nope.wav", "nope.wav", StageWorking, StageProcessed)
	assert.Error(t, err)
}

func TestMove_DirectoryConservation(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.wav", StageWorking, "payload")

	require.NoError(t, f.Move("a.wav", "a.wav", StageWorking, StageProcessed))

	_, errWorking := os.Stat(f.Path("a.wav", StageWorking))
	assert.True(t, os.IsNotExist(errWorking))

	data, err := os.ReadFile(f.Path("a.wav", StageProcessed))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestMove_OverwritesExistingDestination(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.wav", StageWorking, "new")
	writeFile(t, f, "a.wav", StageProcessed, "stale")

	require.NoError(t, f.Move("a.wav", "a.wav", StageWorking, StageProcessed))

	data, err := os.ReadFile(f.Path("a.wav", StageProcessed))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMoveWithCompanion_BestEffort(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.wav", StageWorking, "payload")
	writeFile(t, f, "a.meta", StageWorking, "meta")

	require.NoError(t, f.MoveWithCompanion("a.wav", "a.wav", StageWorking, StageFailed))

	_, err := os.Stat(f.Path("a.meta", StageFailed))
	assert.NoError(t, err)
}

func TestMoveWithCompanion_NoCompanionIsNotFatal(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.wav", StageWorking, "payload")

	require.NoError(t, f.MoveWithCompanion("a.wav", "a.wav", StageWorking, StageFailed))
}

func TestSaveText(t *testing.T) {
	f := newTestFiler(t)
	require.NoError(t, f.SaveText("a.txt", StageProcessed, "hello"))

	data, err := os.ReadFile(filepath.Join(f.stageDir(StageProcessed), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDelete_MissingIsError(t *testing.T) {
	f := newTestFiler(t)
	assert.Error(t, f.Delete("nope.txt", StageProcessed))
}

func TestDelete(t *testing.T) {
	f := newTestFiler(t)
	writeFile(t, f, "a.txt", StageProcessed, "x")
	require.NoError(t, f.Delete("a.txt", StageProcessed))
	_, err := os.Stat(f.Path("a.txt", StageProcessed))
	assert.True(t, os.IsNotExist(err))
}

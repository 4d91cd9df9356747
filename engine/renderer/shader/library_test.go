package shader

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStage(t *testing.T, dir, file, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o644))
}

func TestLibraryLoad(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, "lit.vert.wgsl", testVertex)
	writeStage(t, dir, "lit.frag.wgsl", testFragment)
	writeStage(t, dir, "notes.txt", "ignored")

	lib := NewLibrary(dir)
	require.NoError(t, lib.Load())
	assert.Equal(t, []string{"lit"}, lib.Names())

	first, ok := lib.Template("lit")
	require.True(t, ok)
	assert.Equal(t, testVertex, first.Vertex)

	// unchanged sources keep the same template pointer
	require.NoError(t, lib.Load())
	same, _ := lib.Template("lit")
	assert.Same(t, first, same)

	writeStage(t, dir, "lit.frag.wgsl", testFragment+"\n// edited\n")
	require.NoError(t, lib.Load())
	next, _ := lib.Template("lit")
	assert.NotSame(t, first, next)

	_, ok = lib.Template("missing")
	assert.False(t, ok)
}

func TestLibraryIncompletePair(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, "half.vert.wgsl", testVertex)

	lib := NewLibrary(dir)
	err := lib.Load()
	assert.Error(t, err)
	assert.Empty(t, lib.Names())
}

func TestLibraryWatch(t *testing.T) {
	dir := t.TempDir()
	writeStage(t, dir, "lit.vert.wgsl", testVertex)
	writeStage(t, dir, "lit.frag.wgsl", testFragment)

	var reloads atomic.Int32
	lib := NewLibrary(dir, WithOnReload(func(*Template) { reloads.Add(1) }))
	require.NoError(t, lib.Load())
	require.NoError(t, lib.Watch())
	defer lib.Close()

	first, _ := lib.Template("lit")
	writeStage(t, dir, "lit.vert.wgsl", testVertex+"\n// edited\n")

	require.Eventually(t, func() bool {
		cur, _ := lib.Template("lit")
		return cur != first
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))

	require.NoError(t, lib.Close())
	require.NoError(t, lib.Close())
}

package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFileAged(t *testing.T, dir, name string, age time.Duration, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestRunOnce_DeletesOnlyAgedFiles(t *testing.T) {
	uploads := t.TempDir()
	outputs := t.TempDir()

	old1 := writeFileAged(t, uploads, "old1.gcode", 48*time.Hour, 100)
	old2 := writeFileAged(t, outputs, "old2.gcode", 25*time.Hour, 200)
	recent := writeFileAged(t, uploads, "recent.gcode", time.Hour, 50)

	s := New([]string{uploads, outputs}, 24*time.Hour, time.Hour, nil)
	res := s.RunOnce(context.Background())

	assert.Equal(t, 2, res.FilesDeleted)
	assert.Equal(t, int64(300), res.BytesFreed)
	assert.Equal(t, 0, res.Errors)

	for _, gone := range []string{old1, old2} {
		_, err := os.Stat(gone)
		assert.True(t, os.IsNotExist(err), "%s should be deleted", gone)
	}
	_, err := os.Stat(recent)
	assert.NoError(t, err, "recent file must survive")
}

func TestRunOnce_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "subdir")
	require.NoError(t, os.Mkdir(sub, 0755))
	mtime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(sub, mtime, mtime))

	s := New([]string{dir}, 24*time.Hour, time.Hour, nil)
	res := s.RunOnce(context.Background())

	assert.Equal(t, 0, res.FilesDeleted)
	_, err := os.Stat(sub)
	assert.NoError(t, err)
}

func TestRunOnce_MissingDirCountsAsError(t *testing.T) {
	s := New([]string{filepath.Join(t.TempDir(), "gone")}, 24*time.Hour, time.Hour, nil)
	res := s.RunOnce(context.Background())

	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 0, res.FilesDeleted)
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	writeFileAged(t, dir, "old.gcode", 48*time.Hour, 10)

	s := New([]string{dir}, 24*time.Hour, 10*time.Millisecond, nil)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 5*time.Millisecond)

	s.Stop()
}

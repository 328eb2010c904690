package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricklayers/bricklayd/internal/bytesize"
	"github.com/bricklayers/bricklayd/pkg/config"
)

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	tmp := t.TempDir()
	s, err := New(config.StorageConfig{
		UploadDir:         filepath.Join(tmp, "uploads"),
		OutputDir:         filepath.Join(tmp, "outputs"),
		MaxUploadSize:     bytesize.ByteSize(maxSize),
		AllowedExtensions: []string{".gcode", ".gco", ".g"},
	})
	require.NoError(t, err)
	return s
}

func TestNew_CreatesDirectories(t *testing.T) {
	s := newTestStore(t, 1024)

	for _, dir := range []string{s.UploadDir(), s.OutputDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean name unchanged", "benchy.gcode", "benchy.gcode"},
		{"spaces replaced", "my print.gcode", "my_print.gcode"},
		{"unsafe chars replaced", "a#b$c.gcode", "a_b_c.gcode"},
		{"runs collapsed", "a   b.gcode", "a_b.gcode"},
		{"edges trimmed", " benchy .gcode", "benchy.gcode"},
		{"extension preserved", "weird name!.GCODE", "weird_name.GCODE"},
		{"long stem truncated", strings.Repeat("a", 150) + ".gcode", strings.Repeat("a", 100) + ".gcode"},
		{"truncation cut trimmed", strings.Repeat("a_", 100) + ".gcode", strings.Repeat("a_", 49) + "a.gcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := SanitizeFilename(tt.input)
			assert.Equal(t, tt.expected, once)
			assert.Equal(t, once, SanitizeFilename(once), "sanitize must be idempotent")
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		ok       bool
	}{
		{"valid", "benchy v2.gcode", true},
		{"empty", "", false},
		{"traversal", "../etc/passwd.gcode", false},
		{"forward slash", "a/b.gcode", false},
		{"backslash", `a\b.gcode`, false},
		{"null byte", "a\x00b.gcode", false},
		{"shell chars", "a;rm.gcode", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFilename)
			}
		})
	}
}

func TestValidateExtension(t *testing.T) {
	s := newTestStore(t, 1024)

	assert.NoError(t, s.ValidateExtension("benchy.gcode"))
	assert.NoError(t, s.ValidateExtension("benchy.GCODE"))
	assert.NoError(t, s.ValidateExtension("part.g"))
	assert.ErrorIs(t, s.ValidateExtension("benchy.stl"), ErrInvalidExtension)
	assert.ErrorIs(t, s.ValidateExtension("noext"), ErrInvalidExtension)
}

func TestSniffGcode(t *testing.T) {
	valid := []byte(";LAYER_CHANGE\nG1 X10.5 Y20 Z0.2 E1.5 F1800\nM104 S210\n")
	assert.NoError(t, SniffGcode(valid))

	// Comments plus one command family is only two distinct patterns
	weak := []byte("; just a comment\nM104\n")
	assert.ErrorIs(t, SniffGcode(weak), ErrNotGcode)

	assert.ErrorIs(t, SniffGcode([]byte("hello world")), ErrNotGcode)
}

func TestPaths(t *testing.T) {
	s := newTestStore(t, 1024)

	up := s.UploadPath("abc123", "my print.gcode")
	assert.Equal(t, filepath.Join(s.UploadDir(), "abc123_my_print.gcode"), up)

	out := s.OutputPath("abc123", "my print.gcode")
	assert.Equal(t, filepath.Join(s.OutputDir(), "abc123_my_print_processed.gcode"), out)
}

func TestCaptureUpload(t *testing.T) {
	s := newTestStore(t, 64*1024)

	payload := bytes.Repeat([]byte("G1 X0 Y0 Z0.2 E1 F1800\n"), 500)
	captured, err := s.CaptureUpload("job1", "test.gcode", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), captured.Size)
	assert.Equal(t, payload[:HeadChunkSize], captured.Head)

	data, err := os.ReadFile(captured.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// No .part residue
	_, err = os.Stat(captured.Path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestCaptureUpload_ShortHead(t *testing.T) {
	s := newTestStore(t, 1024)

	payload := []byte("G1 X0\n")
	captured, err := s.CaptureUpload("job1", "t.gcode", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, captured.Head)
}

func TestCaptureUpload_TooLarge(t *testing.T) {
	s := newTestStore(t, 1024)

	payload := bytes.Repeat([]byte("x"), 2048)
	_, err := s.CaptureUpload("job1", "big.gcode", bytes.NewReader(payload))
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")

	// Partial file must be gone
	entries, err := os.ReadDir(s.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureUpload_Empty(t *testing.T) {
	s := newTestStore(t, 1024)

	_, err := s.CaptureUpload("job1", "empty.gcode", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrEmptyFile)

	entries, err := os.ReadDir(s.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDelete(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f.gcode")
	require.NoError(t, os.WriteFile(path, []byte("G1\n"), 0644))

	deleted, err := Delete(path)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Second delete is a no-op, not an error
	deleted, err = Delete(path)
	require.NoError(t, err)
	assert.False(t, deleted)
}

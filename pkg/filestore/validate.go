package filestore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// HeadChunkSize is how many leading bytes of an upload are retained for
// content sniffing.
const HeadChunkSize = 2048

var (
	filenamePattern = regexp.MustCompile(`^[\w\s.-]+$`)

	// Patterns that suggest a file is G-code. A head chunk must match at
	// least minGcodePatterns distinct patterns to pass the sniff.
	gcodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`G[0-9]+`),  // movement commands (G0, G1, ...)
		regexp.MustCompile(`M[0-9]+`),  // machine commands
		regexp.MustCompile(`X[0-9.-]+`),
		regexp.MustCompile(`Y[0-9.-]+`),
		regexp.MustCompile(`Z[0-9.-]+`),
		regexp.MustCompile(`;`), // comments
	}

	sanitizeUnsafe   = regexp.MustCompile(`[^\w.-]`)
	sanitizeCollapse = regexp.MustCompile(`_+`)
)

const minGcodePatterns = 3

// maxStemLength bounds the sanitized stem, leaving room for the job ID
// prefix within filesystem name limits.
const maxStemLength = 100

// ValidateFilename checks that a client-supplied filename is safe.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is empty", ErrInvalidFilename)
	}
	if strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: filename contains invalid path characters", ErrInvalidFilename)
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("%w: filename contains null bytes", ErrInvalidFilename)
	}
	if !filenamePattern.MatchString(filename) {
		return fmt.Errorf("%w: use only letters, numbers, spaces, dash, underscore, and dot", ErrInvalidFilename)
	}
	return nil
}

// ValidateExtension checks the filename extension against the allowed set.
// Extensions are compared lowercase with the leading dot.
func (s *Store) ValidateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	if ext == "" {
		return fmt.Errorf("%w: file has no extension", ErrInvalidExtension)
	}
	if _, ok := s.allowedExts[ext]; !ok {
		return fmt.Errorf("%w: %q not allowed (allowed: %s)",
			ErrInvalidExtension, ext, strings.Join(s.allowedList, ", "))
	}
	return nil
}

// SniffGcode checks that the head chunk of an upload looks like G-code.
// It counts how many distinct G-code patterns appear and requires at
// least three. Non-UTF-8 bytes are tolerated; the patterns are ASCII.
func SniffGcode(head []byte) error {
	matches := 0
	for _, p := range gcodePatterns {
		if p.Match(head) {
			matches++
		}
	}
	if matches < minGcodePatterns {
		return fmt.Errorf("%w: expected G-code commands and coordinates", ErrNotGcode)
	}
	return nil
}

// SanitizeFilename rewrites a filename so it is safe to place on disk.
//
// The stem has every character outside [A-Za-z0-9_.-] replaced with an
// underscore, runs of underscores collapsed, the result truncated to
// 100 characters, and leading and trailing underscores trimmed. The
// extension is preserved as-is.
func SanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filepath.Base(filename), ext)

	stem = sanitizeUnsafe.ReplaceAllString(stem, "_")
	stem = sanitizeCollapse.ReplaceAllString(stem, "_")

	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	// Trim after truncation; cutting at the limit can expose a
	// trailing underscore.
	stem = strings.Trim(stem, "_")

	return stem + ext
}

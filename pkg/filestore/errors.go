package filestore

import "errors"

// Sentinel errors for upload validation. Handlers map these to HTTP
// problem responses with errors.Is.
var (
	// ErrInvalidFilename indicates an empty filename or one containing
	// path separators, traversal sequences, null bytes, or characters
	// outside the allowed set.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrInvalidExtension indicates a missing or disallowed file extension.
	ErrInvalidExtension = errors.New("invalid file extension")

	// ErrEmptyFile indicates a zero-byte upload.
	ErrEmptyFile = errors.New("file is empty")

	// ErrNotGcode indicates the file head does not look like G-code.
	ErrNotGcode = errors.New("file does not appear to contain valid G-code")

	// ErrFileTooLarge indicates the upload stream exceeded the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

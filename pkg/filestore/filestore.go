// Package filestore implements directory-scoped capture, path derivation,
// and streaming validation for uploads and processed outputs.
//
// The store owns no state beyond its configuration; it is a capability
// over the upload and output directories.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bricklayers/bricklayd/pkg/bufpool"
	"github.com/bricklayers/bricklayd/pkg/config"
)

// Store derives paths and captures byte streams under the configured
// upload and output directories.
type Store struct {
	uploadDir     string
	outputDir     string
	maxUploadSize int64
	allowedExts   map[string]struct{}
	allowedList   []string
}

// CapturedUpload describes a successfully captured upload.
type CapturedUpload struct {
	// Path is the final on-disk location of the upload.
	Path string

	// Size is the total number of bytes written.
	Size int64

	// Head holds the first up-to-2048 bytes for content sniffing
	// without re-reading the file.
	Head []byte
}

// New creates a Store and ensures both directories exist.
func New(cfg config.StorageConfig) (*Store, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	exts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	list := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(ext)
		exts[ext] = struct{}{}
		list = append(list, ext)
	}

	return &Store{
		uploadDir:     cfg.UploadDir,
		outputDir:     cfg.OutputDir,
		maxUploadSize: cfg.MaxUploadSize.Int64(),
		allowedExts:   exts,
		allowedList:   list,
	}, nil
}

// UploadDir returns the configured upload directory.
func (s *Store) UploadDir() string { return s.uploadDir }

// OutputDir returns the configured output directory.
func (s *Store) OutputDir() string { return s.outputDir }

// MaxUploadSize returns the upload size limit in bytes.
func (s *Store) MaxUploadSize() int64 { return s.maxUploadSize }

// UploadPath returns the on-disk location for a job's upload:
// UPLOAD_DIR/{id}_{sanitized_name}.
func (s *Store) UploadPath(id, filename string) string {
	return filepath.Join(s.uploadDir, id+"_"+SanitizeFilename(filename))
}

// OutputPath returns the on-disk location for a job's processed output:
// OUTPUT_DIR/{id}_{stem}_processed{ext}.
func (s *Store) OutputPath(id, filename string) string {
	safe := SanitizeFilename(filename)
	ext := filepath.Ext(safe)
	stem := strings.TrimSuffix(safe, ext)
	return filepath.Join(s.outputDir, id+"_"+stem+"_processed"+ext)
}

// CaptureUpload copies the stream to the job's upload path in bounded
// chunks, enforcing the size limit as bytes arrive.
//
// The copy goes to a .part file first and is renamed into place only
// after the stream completes, so a partially captured upload is never
// visible at the final path. If the running byte count exceeds the
// limit the partial file is deleted and ErrFileTooLarge is returned.
// A zero-length stream yields ErrEmptyFile.
func (s *Store) CaptureUpload(id, filename string, r io.Reader) (*CapturedUpload, error) {
	finalPath := s.UploadPath(id, filename)
	partPath := finalPath + ".part"

	f, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	size, head, err := s.copyBounded(f, r)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to finish upload file: %w", cerr)
	}
	if err != nil {
		os.Remove(partPath)
		return nil, err
	}

	if size == 0 {
		os.Remove(partPath)
		return nil, ErrEmptyFile
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("failed to finalize upload file: %w", err)
	}

	return &CapturedUpload{Path: finalPath, Size: size, Head: head}, nil
}

// copyBounded copies r to w in pooled chunks, retaining the
// first HeadChunkSize bytes and failing once the total exceeds the
// configured limit.
func (s *Store) copyBounded(w io.Writer, r io.Reader) (int64, []byte, error) {
	var (
		size int64
		head []byte
		buf  = bufpool.Get()
	)
	defer bufpool.Put(buf)

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			size += int64(n)
			if size > s.maxUploadSize {
				return 0, nil, fmt.Errorf(
					"file size (%.2fMB) exceeds maximum allowed size (%.2fMB): %w",
					float64(size)/(1024*1024),
					float64(s.maxUploadSize)/(1024*1024),
					ErrFileTooLarge)
			}
			if len(head) < HeadChunkSize {
				take := HeadChunkSize - len(head)
				if take > n {
					take = n
				}
				head = append(head, buf[:take]...)
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return 0, nil, fmt.Errorf("failed to write upload file: %w", werr)
			}
		}
		if rerr == io.EOF {
			return size, head, nil
		}
		if rerr != nil {
			return 0, nil, fmt.Errorf("failed to read upload stream: %w", rerr)
		}
	}
}

// Delete removes a file if it exists. It reports whether a file was
// deleted; a missing file is not an error.
func Delete(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

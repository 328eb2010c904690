package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
)

// maxFormFieldBytes bounds the size of non-file multipart fields.
const maxFormFieldBytes = 256

// uploadResponse is the body returned by a successful upload.
type uploadResponse struct {
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// Upload handles POST /api/v1/upload. The file part is streamed to disk
// while being validated and size-bounded; it is never buffered in memory.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mr, err := r.MultipartReader()
	if err != nil {
		h.recordUpload("rejected")
		BadRequest(w, "request body must be multipart/form-data")
		return
	}

	var (
		id       string
		filename string
		captured *filestore.CapturedUpload
		fields   = make(map[string]string)
	)

	cleanup := func() {
		if captured != nil {
			_, _ = filestore.Delete(captured.Path)
		}
	}

	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			cleanup()
			h.recordUpload("rejected")
			BadRequest(w, "malformed multipart body")
			return
		}

		if part.FormName() != "file" {
			value, rerr := io.ReadAll(io.LimitReader(part, maxFormFieldBytes))
			if rerr == nil {
				fields[part.FormName()] = strings.TrimSpace(string(value))
			}
			continue
		}

		if captured != nil {
			// Only the first file part counts.
			continue
		}

		id = uuid.New().String()
		filename = filestore.SanitizeFilename(rawFileName(part))

		captured, err = h.captureFilePart(part, id)
		if err != nil {
			h.writeUploadError(ctx, w, err)
			return
		}
	}

	if captured == nil {
		h.recordUpload("rejected")
		BadRequest(w, "no file provided")
		return
	}

	startAtLayer, multiplier, priority, perr := h.parseUploadParams(fields)
	if perr != nil {
		cleanup()
		h.recordUpload("rejected")
		UnprocessableEntity(w, perr.Error())
		return
	}

	j := h.registry.Register(job.RegisterParams{
		ID:                  id,
		Filename:            filename,
		StartAtLayer:        startAtLayer,
		ExtrusionMultiplier: multiplier,
		Priority:            priority,
		UploadPath:          captured.Path,
		OutputPath:          h.store.OutputPath(id, filename),
	})

	if !h.pool.Submit(id) {
		cleanup()
		h.recordUpload("rejected")
		WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "server is shutting down")
		return
	}

	h.recordUpload("accepted")
	if h.metrics != nil {
		h.metrics.RecordUploadSize(captured.Size)
	}
	logger.InfoCtx(ctx, "Upload accepted",
		logger.JobID(id),
		"filename", filename,
		"size", captured.Size,
		"start_at_layer", startAtLayer,
		"extrusion_multiplier", multiplier,
		"priority", int(priority),
	)

	WriteJSONCreated(w, uploadResponse{
		JobID:     j.ID,
		Filename:  j.Filename,
		FileSize:  captured.Size,
		Priority:  int(j.Priority),
		CreatedAt: j.CreatedAt,
		Status:    string(j.State),
		Message:   "File uploaded successfully and queued for processing",
	})
}

// captureFilePart validates the file part and streams it to the upload
// directory. Validation order: filename, extension, content sniff on the
// first bytes, then the size bound enforced while streaming.
func (h *Handlers) captureFilePart(part *multipart.Part, id string) (*filestore.CapturedUpload, error) {
	name := rawFileName(part)

	if err := filestore.ValidateFilename(name); err != nil {
		return nil, err
	}
	if err := h.store.ValidateExtension(name); err != nil {
		return nil, err
	}

	head := make([]byte, filestore.HeadChunkSize)
	n, rerr := io.ReadFull(part, head)
	if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
		return nil, rerr
	}
	head = head[:n]

	if n == 0 {
		return nil, filestore.ErrEmptyFile
	}
	if err := filestore.SniffGcode(head); err != nil {
		return nil, err
	}

	return h.store.CaptureUpload(id, name, io.MultiReader(bytes.NewReader(head), part))
}

// writeUploadError maps capture/validation failures to problem responses.
func (h *Handlers) writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filestore.ErrFileTooLarge):
		h.recordUpload("too_large")
		PayloadTooLarge(w, err.Error())
	case errors.Is(err, filestore.ErrInvalidFilename),
		errors.Is(err, filestore.ErrInvalidExtension),
		errors.Is(err, filestore.ErrEmptyFile),
		errors.Is(err, filestore.ErrNotGcode):
		h.recordUpload("rejected")
		BadRequest(w, err.Error())
	default:
		h.recordUpload("rejected")
		logger.ErrorCtx(ctx, "Upload capture failed", logger.Err(err))
		InternalServerError(w, "failed to save uploaded file")
	}
}

// parseUploadParams applies configured defaults and bounds to the
// optional form fields.
func (h *Handlers) parseUploadParams(fields map[string]string) (int, float64, job.Priority, error) {
	startAtLayer := h.processing.DefaultStartAtLayer
	if v, ok := fields["start_at_layer"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("start_at_layer must be a non-negative integer")
		}
		startAtLayer = n
	}

	multiplier := h.processing.DefaultMultiplier
	if v, ok := fields["extrusion_multiplier"]; ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("extrusion_multiplier must be a number")
		}
		multiplier = f
	}
	if multiplier < h.processing.MinMultiplier || multiplier > h.processing.MaxMultiplier {
		return 0, 0, 0, fmt.Errorf("extrusion_multiplier must be between %.2f and %.2f",
			h.processing.MinMultiplier, h.processing.MaxMultiplier)
	}

	priority := job.PriorityNormal
	if v, ok := fields["priority"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 2 {
			return 0, 0, 0, fmt.Errorf("priority must be 0, 1 or 2")
		}
		priority = job.Priority(n)
	}

	return startAtLayer, multiplier, priority, nil
}

// rawFileName extracts the filename parameter as sent on the wire.
// Part.FileName applies filepath.Base, which would silently launder
// path traversal attempts instead of rejecting them.
func rawFileName(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return part.FileName()
	}
	if name, ok := params["filename"]; ok {
		return name
	}
	return part.FileName()
}

func (h *Handlers) recordUpload(status string) {
	if h.metrics != nil {
		h.metrics.RecordUpload(status)
	}
}

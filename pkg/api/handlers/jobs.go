package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/pkg/bufpool"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
)

// statusResponse is the body returned by GET /api/v1/status/{id}.
type statusResponse struct {
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// cancelResponse is the body returned by POST /api/v1/cancel/{id}.
type cancelResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Status handles GET /api/v1/status/{id}.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	j, err := h.registry.Get(id)
	if err != nil {
		WriteProblem(w, http.StatusNotFound, "Job not found", fmt.Sprintf("No job with ID %s", id))
		return
	}

	WriteJSONOK(w, statusResponse{
		JobID:     j.ID,
		Filename:  j.Filename,
		Status:    string(j.State),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Error:     j.ErrorMessage,
	})
}

// Download handles GET /api/v1/download/{id}. The processed file is
// streamed as an attachment; the original upload is deleted afterwards
// on a best-effort basis.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	j, err := h.registry.Get(id)
	if err != nil {
		h.recordDownload("not_found")
		WriteProblem(w, http.StatusNotFound, "Job not found", fmt.Sprintf("No job with ID %s", id))
		return
	}

	if j.State != job.StateCompleted {
		h.recordDownload("not_ready")
		WriteProblem(w, http.StatusConflict, "Job not ready",
			fmt.Sprintf("Job status is %s, not ready for download", j.State))
		return
	}

	f, err := os.Open(j.OutputPath)
	if err != nil {
		h.recordDownload("not_found")
		WriteProblem(w, http.StatusNotFound, "Processed file not found",
			"The processed file is no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.recordDownload("not_found")
		InternalServerError(w, "failed to stat processed file")
		return
	}

	stem := strings.TrimSuffix(j.Filename, filepath.Ext(j.Filename))
	attachment := stem + "_processed" + filepath.Ext(j.Filename)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		// Headers are gone; nothing to send but a log line.
		logger.WarnCtx(ctx, "Download stream interrupted", logger.JobID(id), logger.Err(err))
		return
	}

	h.recordDownload("ok")

	// The upload has served its purpose once the result is delivered.
	if deleted, derr := filestore.Delete(j.UploadPath); derr != nil {
		logger.WarnCtx(ctx, "Failed to delete upload after download", logger.JobID(id), logger.Err(derr))
	} else if deleted {
		logger.DebugCtx(ctx, "Deleted upload after download", logger.JobID(id))
	}
}

// Cancel handles POST /api/v1/cancel/{id}.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	j, outcome, err := h.registry.RequestCancel(id)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		WriteProblem(w, http.StatusNotFound, "Job not found", fmt.Sprintf("No job with ID %s", id))
		return
	case errors.Is(err, job.ErrNotCancellable):
		WriteProblem(w, http.StatusConflict, "Job not cancellable", err.Error())
		return
	case err != nil:
		InternalServerError(w, "failed to cancel job")
		return
	}

	message := "Cancellation requested; the job will stop at its next checkpoint"
	if outcome == job.CancelledImmediately {
		message = "Job cancelled before processing started"
	}

	logger.InfoCtx(ctx, "Cancel requested", logger.JobID(id), "status", string(j.State))

	WriteJSONOK(w, cancelResponse{
		JobID:   j.ID,
		Status:  string(j.State),
		Message: message,
	})
}

func (h *Handlers) recordDownload(status string) {
	if h.metrics != nil {
		h.metrics.RecordDownload(status)
	}
}

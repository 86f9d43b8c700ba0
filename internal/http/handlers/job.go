package handlers

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prooflab/cardproof-backend/internal/config"
	"github.com/prooflab/cardproof-backend/internal/http/response"
	"github.com/prooflab/cardproof-backend/internal/jobs"
	"github.com/prooflab/cardproof-backend/internal/manifest"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
	"github.com/prooflab/cardproof-backend/internal/signing"
	"github.com/prooflab/cardproof-backend/internal/sse"
)

// Rough per-job wall time used for the estimatedTime hint on submission.
const estimatePerJob = 30 * time.Second

type JobHandler struct {
	log      *logger.Logger
	cfg      *config.Config
	registry *jobs.Registry
	hub      *sse.Hub
}

func NewJobHandler(log *logger.Logger, cfg *config.Config, registry *jobs.Registry, hub *sse.Hub) *JobHandler {
	return &JobHandler{
		log:      log.With("handler", "JobHandler"),
		cfg:      cfg,
		registry: registry,
		hub:      hub,
	}
}

type submitResponse struct {
	JobID         string    `json:"jobId"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submittedAt"`
	EstimatedTime int       `json:"estimatedTime"` // seconds
}

// Submit receives the multipart upload, verifies authenticity, spools the
// file to the intake directory, and enqueues the job. The body is streamed to
// disk as it arrives; nothing is buffered whole in memory.
func (h *JobHandler) Submit(c *gin.Context) {
	if warn := h.diskWarning(); warn != "" {
		response.RespondKind(c, apierr.KindUnavailable, warn)
		return
	}
	// Reject obviously oversized bodies before reading them. The slack covers
	// multipart framing.
	if cl := c.Request.ContentLength; cl > h.cfg.MaxUploadBytes+(1<<20) {
		response.RespondKind(c, apierr.KindPayloadTooLarge, "upload exceeds size limit")
		return
	}

	id := h.resolveJobID(c.Query("jobId"))

	mr, err := c.Request.MultipartReader()
	if err != nil {
		response.RespondKind(c, apierr.KindInvalidRequest, "expected multipart body")
		return
	}

	var (
		opts        jobs.Options
		optsSeen    bool
		timestampMS int64
		filename    string
		spoolPath   string
		fileSize    int64
		digest      [sha256.Size]byte
		fileSeen    bool
	)
	cleanup := func() {
		if spoolPath != "" {
			_ = os.Remove(spoolPath)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			response.RespondKind(c, apierr.KindInvalidRequest, "malformed multipart body")
			return
		}
		switch part.FormName() {
		case "file":
			filename = filepath.Base(part.FileName())
			ext := strings.ToLower(filepath.Ext(filename))
			if ext != ".ai" && ext != ".pdf" {
				cleanup()
				response.RespondKind(c, apierr.KindUnsupportedMedia, "only .ai and .pdf files are accepted")
				return
			}
			spoolPath = filepath.Join(h.cfg.IntakeDir, id.String()+ext)
			fileSize, digest, err = h.spool(part, spoolPath)
			if err != nil {
				cleanup()
				response.RespondError(c, apierr.From(err))
				return
			}
			fileSeen = true
		case "options":
			raw, err := io.ReadAll(io.LimitReader(part, 64<<10))
			if err != nil || json.Unmarshal(raw, &opts) != nil {
				cleanup()
				response.RespondKind(c, apierr.KindInvalidRequest, "invalid options JSON")
				return
			}
			optsSeen = true
		case "timestamp":
			raw, _ := io.ReadAll(io.LimitReader(part, 64))
			timestampMS, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
			if err != nil {
				cleanup()
				response.RespondKind(c, apierr.KindInvalidRequest, "invalid timestamp")
				return
			}
		}
		_ = part.Close()
	}

	if !fileSeen {
		cleanup()
		response.RespondKind(c, apierr.KindInvalidRequest, "missing file part")
		return
	}
	if !optsSeen {
		opts = jobs.Options{DPI: 600}
	}

	sig := c.GetHeader("X-Signature")
	if !signing.Verify(h.cfg.HMACSecret, sig, digest, opts, timestampMS, time.Now()) {
		cleanup()
		response.RespondKind(c, apierr.KindUnauthorized, "invalid signature or stale timestamp")
		return
	}

	job := jobs.NewJob(id, filename, spoolPath, fileSize, opts)
	if err := h.registry.Submit(job); err != nil {
		cleanup()
		response.RespondError(c, apierr.From(err))
		return
	}

	estimate := (h.registry.QueueDepth() + 1) * int(estimatePerJob.Seconds())
	response.RespondOK(c, submitResponse{
		JobID:         job.ID.String(),
		Status:        string(jobs.StateQueued),
		SubmittedAt:   job.SubmittedAt,
		EstimatedTime: estimate,
	})
}

// spool streams the file part to disk, hashing and counting as it goes, and
// aborts past the size limit.
func (h *JobHandler) spool(part io.Reader, path string) (int64, [sha256.Size]byte, error) {
	var digest [sha256.Size]byte
	f, err := os.Create(path)
	if err != nil {
		return 0, digest, apierr.Wrap(apierr.KindInternal, err)
	}
	defer f.Close()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, hash), io.LimitReader(part, h.cfg.MaxUploadBytes+1))
	if err != nil {
		return 0, digest, apierr.Wrap(apierr.KindInternal, err)
	}
	if n > h.cfg.MaxUploadBytes {
		return 0, digest, apierr.New(apierr.KindPayloadTooLarge, "upload exceeds size limit")
	}
	if n == 0 {
		return 0, digest, apierr.New(apierr.KindInvalidRequest, "empty file")
	}
	copy(digest[:], hash.Sum(nil))
	return n, digest, nil
}

// resolveJobID honors the client-proposed id when it parses and is unused;
// otherwise the server substitutes its own.
func (h *JobHandler) resolveJobID(proposed string) uuid.UUID {
	if proposed != "" {
		if id, err := uuid.Parse(proposed); err == nil {
			if _, exists := h.registry.Get(id); !exists {
				return id
			}
		}
	}
	return uuid.New()
}

func (h *JobHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	view, serr := h.registry.Status(id)
	if serr != nil {
		response.RespondError(c, apierr.From(serr))
		return
	}
	view.Warning = h.diskWarning()
	response.RespondOK(c, view)
}

// Result serves the adapted manifest once the job has succeeded.
func (h *JobHandler) Result(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	dir, rerr := h.registry.Result(id)
	if rerr != nil {
		ae := apierr.From(rerr)
		ae.JobID = id.String()
		response.RespondError(c, ae)
		return
	}
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		h.log.Error("Manifest unreadable for succeeded job", "job_id", id, "error", err)
		response.RespondKind(c, apierr.KindInternal, "manifest unreadable")
		return
	}
	response.RespondOK(c, manifest.Adapt(m))
}

var assetContentTypes = map[string]string{
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".json": "application/json",
}

// Asset streams one file from the job's result directory. Names are opaque
// single-segment identifiers; anything path-like is refused outright.
func (h *JobHandler) Asset(c *gin.Context) {
	name := c.Param("name")
	if name == "" || strings.Contains(name, "..") ||
		strings.HasPrefix(name, "/") || strings.ContainsAny(name, `/\`) {
		response.RespondKind(c, apierr.KindInvalidRequest, "invalid asset name")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	job, ok := h.registry.Get(id)
	if !ok {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	dir := job.ResultDir()
	if dir == "" {
		response.RespondKind(c, apierr.KindNotFound, "no assets for this job")
		return
	}

	path := filepath.Join(dir, name)
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		response.RespondKind(c, apierr.KindNotFound, "unknown asset")
		return
	}

	// The conditional is only honored for assets that still exist; a replayed
	// ETag for a reaped file must 404, not 304.
	etag := fmt.Sprintf("%q", id.String()+"-"+name)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("ETag", etag)
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ct := assetContentTypes[strings.ToLower(filepath.Ext(name))]
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Header("Content-Type", ct)
	c.File(path)
}

// Cancel asks the scheduler to drop a queued job or interrupt a running one.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	if cerr := h.registry.Cancel(id); cerr != nil {
		response.RespondError(c, apierr.From(cerr))
		return
	}
	view, _ := h.registry.Status(id)
	response.RespondOK(c, view)
}

// Events pushes status snapshots over SSE until the job reaches a terminal
// state. Polling remains the authoritative interface.
func (h *JobHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondKind(c, apierr.KindNotFound, "unknown job id")
		return
	}
	view, serr := h.registry.Status(id)
	if serr != nil {
		response.RespondError(c, apierr.From(serr))
		return
	}

	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	write := func(v jobs.View) bool {
		raw, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", raw); err != nil {
			return false
		}
		c.Writer.Flush()
		return !v.State.Terminal()
	}

	if !write(view) {
		return
	}
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case v := <-events:
			if !write(v) {
				return
			}
		}
	}
}

// diskWarning reports low free disk on the intake volume; empty when healthy.
func (h *JobHandler) diskWarning() string {
	free, err := freeBytes(h.cfg.IntakeDir)
	if err != nil {
		return ""
	}
	if free < h.cfg.MinFreeDiskBytes {
		return fmt.Sprintf("low disk: %d bytes free", free)
	}
	return ""
}

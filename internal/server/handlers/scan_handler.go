package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/domain/models"
	"github.com/mamadbah2/balsam/internal/service/scanning"
)

// ScanService owns the station's scan sessions.
type ScanService interface {
	Start(kind models.CaptureKind, uploads ...scanning.Upload) (*scanning.Session, error)
	Current() (*scanning.Session, error)
	Cancel() (*scanning.Session, error)
	Trigger(ctx context.Context) (*scanning.Session, error)
}

// NotificationFeed lists the latest user notifications.
type NotificationFeed interface {
	Recent() []models.Notification
}

// ScanHandler drives scan sessions over HTTP.
type ScanHandler struct {
	svc    ScanService
	feed   NotificationFeed
	logger *zap.Logger
}

// NewScanHandler constructs the HTTP handler adapter.
func NewScanHandler(svc ScanService, feed NotificationFeed, logger *zap.Logger) *ScanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanHandler{svc: svc, feed: feed, logger: logger}
}

type startScanRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// Start begins a live or snapshot scan. Uploads go through Upload.
func (h *ScanHandler) Start(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid scan payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	kind, ok := models.ParseCaptureKind(req.Kind)
	if !ok || kind == models.CaptureUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported scan kind"})
		return
	}

	s, err := h.svc.Start(kind)
	if err != nil {
		respondError(c, h.logger, "failed starting scan", err)
		return
	}
	c.JSON(http.StatusAccepted, s.Status())
}

// Status reports the current session.
func (h *ScanHandler) Status(c *gin.Context) {
	s, err := h.svc.Current()
	if err != nil {
		respondError(c, h.logger, "scan status unavailable", err)
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// Cancel stops the current session and returns once the camera is released.
func (h *ScanHandler) Cancel(c *gin.Context) {
	s, err := h.svc.Cancel()
	if err != nil {
		respondError(c, h.logger, "failed cancelling scan", err)
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// Snapshot takes one picture on the current snapshot session.
func (h *ScanHandler) Snapshot(c *gin.Context) {
	s, err := h.svc.Trigger(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "snapshot failed", err)
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// Torch flips the flash light of the current live session.
func (h *ScanHandler) Torch(c *gin.Context) {
	s, err := h.svc.Current()
	if err != nil {
		respondError(c, h.logger, "torch toggle failed", err)
		return
	}
	on, err := s.ToggleTorch()
	if err != nil {
		respondError(c, h.logger, "torch toggle failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"torch": on})
}

// Upload scans the multipart "images" files and waits for the outcome.
func (h *ScanHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Warn("invalid upload form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	files := form.File["images"]
	uploads := make([]scanning.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(c, h.logger, "failed reading upload", err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			respondError(c, h.logger, "failed reading upload", err)
			return
		}
		uploads = append(uploads, scanning.Upload{Name: fh.Filename, Data: data})
	}

	s, err := h.svc.Start(models.CaptureUpload, uploads...)
	if err != nil {
		respondError(c, h.logger, "failed starting upload scan", err)
		return
	}

	if err := s.Wait(c.Request.Context()); err != nil && c.Request.Context().Err() != nil {
		h.logger.Warn("client left before upload scan finished", zap.String("session", s.ID()))
		return
	}

	status := s.Status()
	code := http.StatusOK
	if status.State == models.StateFailed {
		code = statusFor(s.Err())
	}
	c.JSON(code, status)
}

// Notifications returns the recent user notifications, newest last.
func (h *ScanHandler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.feed.Recent()})
}

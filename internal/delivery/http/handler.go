package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/usecase"
)

// EventSource hands out event subscriptions for the SSE stream
type EventSource interface {
	Subscribe() (<-chan domain.Event, func())
}

// KeyVerifier checks a vision API key against the provider
type KeyVerifier interface {
	Verify(ctx context.Context, apiKey string) error
}

// Services are the use cases served over HTTP. Any of them may be nil, in which
// case the matching endpoints answer 412.
type Services struct {
	Search    *usecase.SearchService
	Detection *usecase.DetectionService
	Watcher   *usecase.PageWatcher
	Alerts    *usecase.AlertService
	History   *usecase.HistoryStore
	Vision    *usecase.VisionService
	Images    *usecase.ImageQueue
	Settings  *usecase.SettingsService
	Events    EventSource
	Verifier  KeyVerifier
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc       Services
	heartbeat time.Duration
	logger    *zap.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithHeartbeat sets the SSE keep-alive interval
func WithHeartbeat(d time.Duration) HandlerOption {
	return func(h *Handler) { h.heartbeat = d }
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, heartbeat: 30 * time.Second, logger: logger.Named("http")}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricelens-backend",
		"version": "1.0.0",
	})
}

// Search handles searchMarketplace requests
func (h *Handler) Search(c *gin.Context) {
	if h.svc.Search == nil {
		h.unavailable(c, "search")
		return
	}
	var req domain.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.svc.Search.Search(c.Request.Context(), req.Query, req.Region)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Detect extracts product candidates from a page snapshot or URL
func (h *Handler) Detect(c *gin.Context) {
	if h.svc.Detection == nil {
		h.unavailable(c, "detection")
		return
	}
	var req domain.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	candidates, err := h.svc.Detection.Detect(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "candidates": nonNil(candidates)})
}

type watchRequest struct {
	URL string `json:"url" binding:"required"`
}

// Watch starts re-detecting candidates whenever the page changes
func (h *Handler) Watch(c *gin.Context) {
	if h.svc.Watcher == nil {
		h.unavailable(c, "page watcher")
		return
	}
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.svc.Watcher.Watch(strings.TrimSpace(req.URL)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"watching": h.svc.Watcher.Watched()})
}

// Unwatch stops watching the page named by the url query parameter
func (h *Handler) Unwatch(c *gin.Context) {
	if h.svc.Watcher == nil {
		h.unavailable(c, "page watcher")
		return
	}
	if err := h.svc.Watcher.Unwatch(strings.TrimSpace(c.Query("url"))); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watching": h.svc.Watcher.Watched()})
}

// ListAlerts returns every stored alert
func (h *Handler) ListAlerts(c *gin.Context) {
	if h.svc.Alerts == nil {
		h.unavailable(c, "alerts")
		return
	}
	alerts, err := h.svc.Alerts.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": nonNil(alerts)})
}

// SetAlert creates or updates the alert for one listing
func (h *Handler) SetAlert(c *gin.Context) {
	if h.svc.Alerts == nil {
		h.unavailable(c, "alerts")
		return
	}
	var req domain.SetAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	alert, err := h.svc.Alerts.Set(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// RemoveAlert deletes the alert with the given listing id
func (h *Handler) RemoveAlert(c *gin.Context) {
	if h.svc.Alerts == nil {
		h.unavailable(c, "alerts")
		return
	}
	id := c.Param("id")
	if err := h.svc.Alerts.Remove(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

// CheckAlerts runs one evaluation pass over every alert
func (h *Handler) CheckAlerts(c *gin.Context) {
	if h.svc.Alerts == nil {
		h.unavailable(c, "alerts")
		return
	}
	report, err := h.svc.Alerts.EvaluateAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetHistory returns the price series of one listing
func (h *Handler) GetHistory(c *gin.Context) {
	if h.svc.History == nil {
		h.unavailable(c, "history")
		return
	}
	region, err := domain.LookupRegion(c.Param("region"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	series, err := h.svc.History.Get(c.Request.Context(), c.Param("id"), region.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// ClearHistory deletes every price series
func (h *Handler) ClearHistory(c *gin.Context) {
	if h.svc.History == nil {
		h.unavailable(c, "history")
		return
	}
	if err := h.svc.History.Clear(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// ClassifyImages runs the vision batch processor over the given images
func (h *Handler) ClassifyImages(c *gin.Context) {
	if h.svc.Vision == nil {
		h.unavailable(c, "vision")
		return
	}
	var req domain.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	candidates, err := h.svc.Vision.Classify(c.Request.Context(), req.Images)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": nonNil(candidates)})
}

type queueRequest struct {
	Images  []domain.VisionImage     `json:"images"`
	Visible []domain.VisibilityEvent `json:"visible"`
}

// QueueImages registers page images and reports which of them scrolled into view
func (h *Handler) QueueImages(c *gin.Context) {
	if h.svc.Images == nil {
		h.unavailable(c, "image queue")
		return
	}
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	observed := h.svc.Images.Observe(req.Images)
	queued := h.svc.Images.HandleVisibility(req.Visible)
	c.JSON(http.StatusAccepted, gin.H{
		"observed": observed,
		"queued":   queued,
		"pending":  h.svc.Images.Pending(),
	})
}

// RescanImages forgets every processed image so the page is classified again
func (h *Handler) RescanImages(c *gin.Context) {
	if h.svc.Images == nil {
		h.unavailable(c, "image queue")
		return
	}
	h.svc.Images.Reset()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

type verifyRequest struct {
	APIKey string `json:"apiKey"`
}

// VerifyVisionKey checks the given key, or the stored key when none is given
func (h *Handler) VerifyVisionKey(c *gin.Context) {
	if h.svc.Verifier == nil {
		h.unavailable(c, "vision")
		return
	}
	var req verifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	key := strings.TrimSpace(req.APIKey)
	if h.svc.Settings != nil {
		stored := h.svc.Settings.Current().VisionAPIKey
		if key == "" || key == usecase.MaskAPIKey(stored) {
			key = stored
		}
	}
	if key == "" {
		h.respondError(c, domain.ErrConfiguration)
		return
	}

	if err := h.svc.Verifier.Verify(c.Request.Context(), key); err != nil {
		if errors.Is(err, domain.ErrConfiguration) || errors.Is(err, domain.ErrInvalidRequest) {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetSettings returns settings with the API key masked
func (h *Handler) GetSettings(c *gin.Context) {
	if h.svc.Settings == nil {
		h.unavailable(c, "settings")
		return
	}
	c.JSON(http.StatusOK, usecase.Masked(h.svc.Settings.Current()))
}

// UpdateSettings applies the fields present in the body on top of the current settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	if h.svc.Settings == nil {
		h.unavailable(c, "settings")
		return
	}
	next := h.svc.Settings.Current()
	if err := c.ShouldBindJSON(&next); err != nil {
		h.badRequest(c, err)
		return
	}

	saved, err := h.svc.Settings.Update(c.Request.Context(), next)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usecase.Masked(saved))
}

// ListRegions returns the supported marketplaces
func (h *Handler) ListRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regions": domain.Regions()})
}

// Stats returns the alert and history counters
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	var stats domain.Stats

	if h.svc.Alerts != nil {
		alerts, err := h.svc.Alerts.List(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		stats.Alerts = len(alerts)
	}
	if h.svc.History != nil {
		n, err := h.svc.History.Count(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		stats.History = n
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

func (h *Handler) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusPreconditionFailed, gin.H{"error": what + " is not configured"})
}

// respondError maps domain errors onto status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	var searchErr *domain.SearchError
	if errors.As(err, &searchErr) {
		status := http.StatusBadGateway
		if searchErr.Kind == domain.KindRateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error":    searchErr.Reason(),
			"kind":     searchErr.Kind,
			"attempts": searchErr.Attempts,
		})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", RequestID(c)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownRegion):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrBlocked), errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrBadStatus):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// nonNil keeps empty results encoding as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

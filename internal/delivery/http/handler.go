package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/usecase"
	"go.uber.org/zap"
)

// SessionHeader identifies a dashboard session for latest-result tracking
const SessionHeader = "X-Session-ID"

// maxUploadBytes bounds product photo uploads
const maxUploadBytes = 10 << 20

// DealService is the comparison pipeline the handlers drive
type DealService interface {
	Compare(ctx context.Context, query domain.DealQuery, key domain.SortKey) (*domain.Comparison, error)
	ManualSearch(ctx context.Context, request domain.ManualSearchRequest) (*domain.Comparison, error)
	IdentifyImage(ctx context.Context, filename string, image io.Reader) (*domain.ImageIdentification, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	deals  DealService
	latest *usecase.LatestResults
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. latest may be nil to disable
// per-session result tracking.
func NewHandler(deals DealService, latest *usecase.LatestResults, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		deals:  deals,
		latest: latest,
		logger: logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricelens-gateway",
		"version": "1.0.0",
	})
}

// GetDeals handles GET /api/v1/deals
func (h *Handler) GetDeals(c *gin.Context) {
	if h.deals == nil {
		h.respondUnavailable(c)
		return
	}

	key, err := domain.ParseSortKey(c.Query("sort"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	query := domain.DealQuery{
		Product: c.Query("product"),
		Pincode: strings.TrimSpace(c.Query("pincode")),
	}
	if raw := c.Query("search_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "search_id must be a non-negative integer"})
			return
		}
		query.SearchID = id
	}

	h.tracked(c, func(ctx context.Context) (*domain.Comparison, error) {
		return h.deals.Compare(ctx, query, key)
	})
}

// SearchManual handles POST /api/v1/search/manual
func (h *Handler) SearchManual(c *gin.Context) {
	if h.deals == nil {
		h.respondUnavailable(c)
		return
	}

	var request domain.ManualSearchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	h.tracked(c, func(ctx context.Context) (*domain.Comparison, error) {
		return h.deals.ManualSearch(ctx, request)
	})
}

// SearchImage handles POST /api/v1/search/image
func (h *Handler) SearchImage(c *gin.Context) {
	if h.deals == nil {
		h.respondUnavailable(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer file.Close()

	result, err := h.deals.IdentifyImage(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LatestDeals handles GET /api/v1/deals/latest
func (h *Handler) LatestDeals(c *gin.Context) {
	session := c.GetHeader(SessionHeader)
	if session == "" || h.latest == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": SessionHeader + " header is required"})
		return
	}

	result, ok := h.latest.Latest(session)
	if !ok {
		h.respondError(c, domain.ErrNoResult)
		return
	}
	c.JSON(http.StatusOK, result)
}

// tracked runs a lookup and, when the request carries a session id, only
// answers with the result if no newer lookup was started meanwhile
func (h *Handler) tracked(c *gin.Context, lookup func(ctx context.Context) (*domain.Comparison, error)) {
	session := c.GetHeader(SessionHeader)
	if session == "" || h.latest == nil {
		result, err := lookup(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	ticket := h.latest.Begin(session)
	result, err := lookup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.latest.Commit(session, ticket, result) {
		h.logger.Info("discarding stale comparison",
			zap.String("session", session),
			zap.Uint64("ticket", ticket))
		h.respondError(c, domain.ErrSuperseded)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondError maps domain errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": publicMessage(err, status)})
}

func (h *Handler) respondUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deal service not configured"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidSortKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrBackendFailure), errors.Is(err, domain.ErrInvalidBackendResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal error detail out of 5xx responses
func publicMessage(err error, status int) string {
	switch status {
	case http.StatusBadGateway:
		return domain.ErrBackendFailure.Error()
	case http.StatusGatewayTimeout:
		return "price backend timed out"
	case http.StatusInternalServerError:
		return "internal server error"
	}
	for _, known := range []error{
		domain.ErrInvalidSortKey,
		domain.ErrInvalidRequest,
		domain.ErrNoResult,
		domain.ErrSuperseded,
		domain.ErrRateLimited,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

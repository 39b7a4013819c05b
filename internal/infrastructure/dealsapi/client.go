// Package dealsapi talks to the price-comparison backend that scrapes
// retailer sites and returns one raw payload per retailer.
package dealsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "PriceLens-Gateway/1.0"

// Call labels for metrics and logs
const (
	callDeals        = "deals"
	callUpload       = "upload"
	callManualSearch = "manual_search"
)

// maxErrorBody bounds how much of a failed response is logged
const maxErrorBody = 512

// maxResponseBody bounds how much of any backend response is read
const maxResponseBody = 8 << 20

// ClientConfig holds transport settings for the backend client
type ClientConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client handles communication with the price-comparison backend
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokens      domain.TokenProvider
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a new backend client. tokens may be nil, in which case
// requests are sent without an Authorization header.
func NewClient(baseURL string, cfg ClientConfig, tokens domain.TokenProvider, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:      logger.With(zap.String("component", "dealsapi")),
	}
}

// FetchDeals requests offers for a product from every retailer the backend
// knows. Retailers whose value is not an object are returned as error
// payloads so the normalizer excludes them.
func (c *Client) FetchDeals(ctx context.Context, query string, searchID int64, pincode string) (domain.RetailerResponse, error) {
	params := url.Values{}
	params.Set("product", query)
	params.Set("search_id", strconv.FormatInt(searchID, 10))
	if pincode != "" {
		params.Set("pincode", pincode)
	}
	reqURL := fmt.Sprintf("%s/api/deals?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(ctx, callDeals, req)
	if err != nil {
		return nil, err
	}

	deals, err := DecodeDeals(body)
	if err != nil {
		c.logger.Warn("undecodable deals response", zap.String("product", query), zap.Error(err))
		return nil, err
	}

	c.logger.Debug("deals fetched",
		zap.String("product", query),
		zap.Int64("search_id", searchID),
		zap.Int("retailers", len(deals)))
	return deals, nil
}

// UploadImage sends a product photo to the backend's recognizer
func (c *Client) UploadImage(ctx context.Context, filename string, image io.Reader) (*domain.ImageIdentification, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := c.do(ctx, callUpload, req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Product          string      `json:"product"`
		ProductName      string      `json:"product_name"`
		PredictedProduct string      `json:"predicted_product"`
		SearchID         json.Number `json:"search_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBackendResponse, err)
	}

	product := firstNonBlank(payload.Product, payload.ProductName, payload.PredictedProduct)
	if product == "" {
		return nil, fmt.Errorf("%w: no product identified", domain.ErrInvalidBackendResponse)
	}

	var searchID int64
	if payload.SearchID != "" {
		searchID, err = payload.SearchID.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: search_id %q", domain.ErrInvalidBackendResponse, payload.SearchID)
		}
	}

	c.logger.Info("image identified", zap.String("product", product), zap.Int64("search_id", searchID))
	return &domain.ImageIdentification{Product: product, SearchID: searchID}, nil
}

// SaveManualSearch records a typed search in the backend's history
func (c *Client) SaveManualSearch(ctx context.Context, query string) error {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/manual-search", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(ctx, callManualSearch, req)
	return err
}

// do paces, authenticates and executes one request, returning the body of
// a 2xx response. There is exactly one attempt per call.
func (c *Client) do(ctx context.Context, call string, req *http.Request) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// the limiter refuses waits that would outlive the deadline
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, fmt.Errorf("%w: rate limiter wait: %w", domain.ErrBackendFailure, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain session token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.BackendRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(call, "error").Inc()
		c.logger.Warn("backend request failed", zap.String("call", call), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(call, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", domain.ErrBackendFailure, err)
	}
	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidBackendResponse, maxResponseBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend returned error status",
			zap.String("call", call),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), maxErrorBody)))
		return nil, fmt.Errorf("%w: status %d", domain.ErrBackendFailure, resp.StatusCode)
	}

	return body, nil
}

// DecodeDeals reads a backend deals body into a retailer response. Numbers
// are kept as json.Number. Retailer values that are not objects become
// error payloads; null stays nil.
func DecodeDeals(body []byte) (domain.RetailerResponse, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBackendResponse, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: body is null", domain.ErrInvalidBackendResponse)
	}

	deals := make(domain.RetailerResponse, len(top))
	for retailer, raw := range top {
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: retailer %q: %v", domain.ErrInvalidBackendResponse, retailer, err)
		}
		switch v := value.(type) {
		case nil:
			deals[retailer] = nil
		case map[string]any:
			deals[retailer] = domain.RawOfferPayload(v)
		default:
			deals[retailer] = domain.RawOfferPayload{"error": v}
		}
	}
	return deals, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

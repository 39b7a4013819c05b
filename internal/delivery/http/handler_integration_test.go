package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pricelens/gateway/config"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/infrastructure/cache"
	"github.com/pricelens/gateway/internal/infrastructure/dealsapi"
	"github.com/pricelens/gateway/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Cache: config.CacheConfig{Type: "memory", TTL: time.Minute},
	}
}

// setupTestRouter creates a router without a deal service
func setupTestRouter() *gin.Engine {
	handler := NewHandler(nil, usecase.NewLatestResults(), nil)
	return SetupRouter(testConfig(), handler, nil)
}

// setupBackendRouter wires the real pipeline against a fake price backend
func setupBackendRouter(t *testing.T, backend http.HandlerFunc) *gin.Engine {
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	memory := cache.NewMemoryCache()
	t.Cleanup(func() { memory.Close() })

	client := dealsapi.NewClient(server.URL, dealsapi.ClientConfig{Timeout: 5 * time.Second, RatePerSecond: 100, Burst: 10}, dealsapi.ForwardedToken{}, nil)
	svc := usecase.NewComparisonService(memory, client, usecase.NewNormalizer(nil), nil, usecase.ComparisonServiceConfig{CacheTTL: time.Minute})

	return SetupRouter(testConfig(), NewHandler(svc, usecase.NewLatestResults(), nil), nil)
}

const backendDeals = `{
	"amazon": {
		"price": "₹1,299",
		"mrp": "₹1,999",
		"rating": "4.1 out of 5 stars",
		"reviews": "12,345 ratings",
		"delivery": "FREE delivery Tomorrow",
		"title": "boAt Airdopes 141 Bluetooth Truly Wireless Earbuds",
		"url": "https://amazon.in/dp/B09"
	},
	"flipkart": {"price": 1099, "rating": 4.3, "delivery": "Delivery in 2-4 days", "availability": "In Stock"},
	"croma": {"error": "timeout"},
	"tatacliq": null
}`

func decodeComparison(t *testing.T, body []byte) domain.Comparison {
	t.Helper()
	var cmp domain.Comparison
	require.NoError(t, json.Unmarshal(body, &cmp))
	return cmp
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "pricelens-gateway", response["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestDealsEndpoint(t *testing.T) {
	t.Run("returns ranked comparison", func(t *testing.T) {
		var calls atomic.Int32
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, "/api/deals", r.URL.Path)
			assert.Equal(t, "boAt Airdopes 141", r.URL.Query().Get("product"))
			assert.Equal(t, "9", r.URL.Query().Get("search_id"))
			assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
			io.WriteString(w, backendDeals)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=boAt+Airdopes+141&search_id=9", nil)
		req.Header.Set("Authorization", "Bearer user-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		cmp := decodeComparison(t, w.Body.Bytes())

		assert.Equal(t, domain.SortByPrice, cmp.Result.SortKey)
		require.Len(t, cmp.Result.Offers, 2)
		assert.Equal(t, "flipkart", cmp.Result.Offers[0].RetailerKey)
		assert.Equal(t, "Flipkart", cmp.Result.Offers[0].DisplayName)
		assert.Equal(t, "amazon", cmp.Result.Offers[1].RetailerKey)
		assert.Equal(t, 1999.0, cmp.Result.Offers[1].OriginalPrice)
		assert.Equal(t, domain.DeliveryTomorrow, cmp.Result.Offers[1].DeliveryCategory)
		assert.Equal(t, 1099.0, cmp.Result.LowestPrice)
		assert.Equal(t, 200.0, cmp.Result.MaxSavings)
		assert.ElementsMatch(t, []string{"croma", "tatacliq"}, cmp.Excluded)
		assert.Equal(t, usecase.SourceBackend, cmp.Source)

		// Second sort order is served from cache
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=boAt+Airdopes+141&search_id=9&sort=discount", nil)
		req.Header.Set("Authorization", "Bearer user-token")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		cmp = decodeComparison(t, w.Body.Bytes())
		assert.Equal(t, usecase.SourceCache, cmp.Source)
		assert.Equal(t, "amazon", cmp.Result.Offers[0].RetailerKey)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("rejects unknown sort", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("backend should not be called")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=tv&sort=popularity", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "sort must be one of")
	})

	t.Run("rejects missing product", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("backend should not be called")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects bad search id", func(t *testing.T) {
		router := setupTestRouter()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=tv&search_id=abc", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		router = setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {})
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=tv&search_id=abc", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("backend failure maps to bad gateway", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=tv", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, domain.ErrBackendFailure.Error(), body["error"])
	})

	t.Run("no offers is an empty result", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"amazon": {"error": true}}`)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=tv", nil))

		require.Equal(t, http.StatusOK, w.Code)
		cmp := decodeComparison(t, w.Body.Bytes())
		assert.Empty(t, cmp.Result.Offers)
		assert.Zero(t, cmp.Result.LowestPrice)
	})
}

func TestManualSearchEndpoint(t *testing.T) {
	t.Run("saves search then compares", func(t *testing.T) {
		saved := make(chan string, 1)
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/manual-search":
				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				saved <- body["query"]
				w.WriteHeader(http.StatusCreated)
			case "/api/deals":
				assert.Equal(t, "0", r.URL.Query().Get("search_id"))
				assert.Equal(t, "110001", r.URL.Query().Get("pincode"))
				io.WriteString(w, backendDeals)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})

		body := `{"query": "boAt Airdopes 141", "pincode": "110001", "sort": "rating"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search/manual", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "boAt Airdopes 141", <-saved)

		cmp := decodeComparison(t, w.Body.Bytes())
		assert.Equal(t, domain.SortByRating, cmp.Result.SortKey)
		assert.Equal(t, "flipkart", cmp.Result.Offers[0].RetailerKey)
	})

	t.Run("missing query is rejected", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search/manual", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestImageSearchEndpoint(t *testing.T) {
	t.Run("forwards upload", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/upload", r.URL.Path)
			file, _, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(file)
			assert.Equal(t, "fake-jpeg", string(data))
			io.WriteString(w, `{"product_name": "Sony WH-1000XM5", "search_id": 31}`)
		})

		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		part, _ := form.CreateFormFile("file", "headphones.jpg")
		part.Write([]byte("fake-jpeg"))
		form.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search/image", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var result domain.ImageIdentification
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "Sony WH-1000XM5", result.Product)
		assert.Equal(t, int64(31), result.SearchID)
	})

	t.Run("missing file is rejected", func(t *testing.T) {
		router := setupBackendRouter(t, func(w http.ResponseWriter, r *http.Request) {})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search/image", strings.NewReader(""))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// blockingService lets a test hold the first Compare call open
type blockingService struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *blockingService) Compare(ctx context.Context, query domain.DealQuery, key domain.SortKey) (*domain.Comparison, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		close(s.started)
		<-s.release
	}
	return &domain.Comparison{Query: query, Result: domain.RankingResult{SortKey: key, Offers: []domain.Offer{}}}, nil
}

func (s *blockingService) ManualSearch(ctx context.Context, request domain.ManualSearchRequest) (*domain.Comparison, error) {
	return s.Compare(ctx, domain.DealQuery{Product: request.Query}, domain.SortByPrice)
}

func (s *blockingService) IdentifyImage(ctx context.Context, filename string, image io.Reader) (*domain.ImageIdentification, error) {
	return nil, domain.ErrInvalidRequest
}

func TestStaleResponsesAreDiscarded(t *testing.T) {
	svc := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	router := SetupRouter(testConfig(), NewHandler(svc, usecase.NewLatestResults(), nil), nil)

	slow := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=old+query", nil)
		req.Header.Set(SessionHeader, "s1")
		router.ServeHTTP(slow, req)
	}()
	<-svc.started

	fast := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals?product=new+query", nil)
	req.Header.Set(SessionHeader, "s1")
	router.ServeHTTP(fast, req)
	require.Equal(t, http.StatusOK, fast.Code)

	close(svc.release)
	<-done
	assert.Equal(t, http.StatusConflict, slow.Code)

	latest := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/deals/latest", nil)
	req.Header.Set(SessionHeader, "s1")
	router.ServeHTTP(latest, req)

	require.Equal(t, http.StatusOK, latest.Code)
	assert.Equal(t, "new query", decodeComparison(t, latest.Body.Bytes()).Query.Product)
}

func TestLatestDealsEndpoint(t *testing.T) {
	router := setupTestRouter()

	t.Run("requires session header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals/latest", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/deals/latest", nil)
		req.Header.Set(SessionHeader, "nobody")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCORSIntegration(t *testing.T) {
	router := setupTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter()
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/deals?product=tv", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrInvalidSortKey, http.StatusBadRequest},
		{domain.ErrNoResult, http.StatusNotFound},
		{domain.ErrSuperseded, http.StatusConflict},
		{domain.ErrBackendFailure, http.StatusBadGateway},
		{domain.ErrInvalidBackendResponse, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestStatusFor_BackendPacingPastDeadline(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer backend.Close()

	client := dealsapi.NewClient(backend.URL, dealsapi.ClientConfig{RatePerSecond: 0.001, Burst: 1}, nil, nil)
	_, err := client.FetchDeals(context.Background(), "tv", 1, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.FetchDeals(ctx, "tv", 1, "")
	require.Error(t, err)

	assert.Equal(t, http.StatusGatewayTimeout, statusFor(err))
}

package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/metrics"
	"go.uber.org/zap"
)

// Result sources
const (
	SourceBackend = "backend"
	SourceCache   = "cache"
)

// ComparisonServiceConfig holds configuration for the comparison service
type ComparisonServiceConfig struct {
	CacheTTL time.Duration
}

// ComparisonService runs the fetch -> normalize -> rank pipeline
type ComparisonService struct {
	cache        domain.CacheRepository
	client       domain.DealsClient
	normalizer   *Normalizer
	preprocessor *QueryPreprocessor
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewComparisonService creates a new comparison service with dependencies.
// cache may be nil to disable caching.
func NewComparisonService(
	cache domain.CacheRepository,
	client domain.DealsClient,
	normalizer *Normalizer,
	logger *zap.Logger,
	config ComparisonServiceConfig,
) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}

	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	return &ComparisonService{
		cache:        cache,
		client:       client,
		normalizer:   normalizer,
		preprocessor: NewQueryPreprocessor(logger),
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// Compare fetches offers for a product and ranks them.
// Flow: clean query -> check cache -> fetch backend -> cache -> normalize -> rank.
// No offers is a valid, empty result.
func (s *ComparisonService) Compare(
	ctx context.Context,
	query domain.DealQuery,
	key domain.SortKey,
) (*domain.Comparison, error) {
	query.Product = s.preprocessor.Clean(query.Product)
	if query.Product == "" || query.SearchID < 0 {
		return nil, domain.ErrInvalidRequest
	}
	if key == "" {
		key = domain.SortByPrice
	}

	cacheKey := s.preprocessor.CacheKey(query.Product, query.SearchID, query.Pincode)

	source := SourceCache
	raw, err := s.getFromCache(ctx, cacheKey)
	if err != nil {
		source = SourceBackend
		raw, err = s.client.FetchDeals(ctx, query.Product, query.SearchID, query.Pincode)
		if err != nil {
			s.logger.Warn("deal fetch failed",
				zap.String("product", query.Product),
				zap.Int64("search_id", query.SearchID),
				zap.Error(err))
			return nil, err
		}
		s.setInCache(ctx, cacheKey, raw)
	}

	offers, excluded := s.normalizer.NormalizeAll(raw)
	for _, o := range offers {
		metrics.OffersNormalized.WithLabelValues(o.RetailerKey, metrics.OutcomeIncluded).Inc()
	}
	for _, k := range excluded {
		metrics.OffersNormalized.WithLabelValues(k, metrics.OutcomeExcluded).Inc()
	}

	s.logger.Debug("comparison built",
		zap.String("product", query.Product),
		zap.String("source", source),
		zap.Int("offers", len(offers)),
		zap.Strings("excluded", excluded))

	return &domain.Comparison{
		Query:     query,
		Result:    BuildRankingResult(offers, key),
		Excluded:  excluded,
		Source:    source,
		FetchedAt: s.now().UTC(),
	}, nil
}

// ManualSearch records a text search with the backend and then compares
// deals for it. Manual searches carry search id 0.
func (s *ComparisonService) ManualSearch(
	ctx context.Context,
	request domain.ManualSearchRequest,
) (*domain.Comparison, error) {
	product := s.preprocessor.Clean(request.Query)
	if product == "" {
		return nil, domain.ErrInvalidRequest
	}
	key, err := domain.ParseSortKey(request.Sort)
	if err != nil {
		return nil, err
	}

	if err := s.client.SaveManualSearch(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to save manual search: %w", err)
	}

	return s.Compare(ctx, domain.DealQuery{
		Product: product,
		Pincode: request.Pincode,
	}, key)
}

// IdentifyImage forwards a product photo to the backend for recognition
func (s *ComparisonService) IdentifyImage(
	ctx context.Context,
	filename string,
	image io.Reader,
) (*domain.ImageIdentification, error) {
	if image == nil {
		return nil, domain.ErrInvalidRequest
	}
	return s.client.UploadImage(ctx, filename, image)
}

// getFromCache retrieves a raw retailer response from cache
func (s *ComparisonService) getFromCache(ctx context.Context, key string) (domain.RetailerResponse, error) {
	if s.cache == nil {
		return nil, domain.ErrCacheMiss
	}

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, err
	}

	resp, ok := toRetailerResponse(value)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, domain.ErrCacheMiss
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return resp, nil
}

// setInCache stores a raw retailer response. Failures are logged only.
func (s *ComparisonService) setInCache(ctx context.Context, key string, resp domain.RetailerResponse) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache deals", zap.String("key", key), zap.Error(err))
	}
}

// toRetailerResponse accepts a cached value either as stored or after a
// JSON round trip through the cache
func toRetailerResponse(value interface{}) (domain.RetailerResponse, bool) {
	switch v := value.(type) {
	case domain.RetailerResponse:
		return v, true
	case map[string]interface{}:
		resp := make(domain.RetailerResponse, len(v))
		for retailer, payload := range v {
			switch p := payload.(type) {
			case nil:
				resp[retailer] = nil
			case map[string]interface{}:
				resp[retailer] = domain.RawOfferPayload(p)
			default:
				return nil, false
			}
		}
		return resp, true
	default:
		return nil, false
	}
}

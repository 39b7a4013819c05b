package domain

import (
	"context"
	"io"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// DealsClient defines the interface for the price-comparison backend
type DealsClient interface {
	FetchDeals(ctx context.Context, query string, searchID int64, pincode string) (RetailerResponse, error)
	UploadImage(ctx context.Context, filename string, image io.Reader) (*ImageIdentification, error)
	SaveManualSearch(ctx context.Context, query string) error
}

// TokenProvider supplies the session token sent to the backend.
// An empty token means the request is sent unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// RetailerInfo is display metadata for a retailer key
type RetailerInfo struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name" json:"name"`
	Logo string `yaml:"logo" json:"logo,omitempty"`
}

// RetailerDirectory resolves retailer keys to display metadata.
// Unknown keys must still resolve to a usable entry.
type RetailerDirectory interface {
	Lookup(key string) RetailerInfo
}

package domain

import (
	"strings"
	"time"
)

// RawOfferPayload is the untyped per-retailer object returned by the backend.
// Field names vary between retailers; see the normalizer for accepted aliases.
type RawOfferPayload map[string]any

// RetailerResponse maps a retailer key to its raw payload.
// A nil payload means the retailer returned nothing for the query.
type RetailerResponse map[string]RawOfferPayload

// Delivery categories derived from free-text delivery estimates
const (
	DeliveryToday       = "Today"
	DeliveryTomorrow    = "Tomorrow"
	DeliveryWeekend     = "This weekend"
	DeliveryExpress     = "Express delivery"
	DeliveryCheckOnSite = "Check website"
)

// Offer is the normalized view of one retailer's price and availability
type Offer struct {
	RetailerKey      string   `json:"retailerKey"`
	DisplayName      string   `json:"displayName"`
	LogoURL          string   `json:"logoUrl,omitempty"`
	Price            float64  `json:"price"`
	OriginalPrice    float64  `json:"originalPrice,omitempty"` // 0 when the retailer reports none
	Rating           float64  `json:"rating"`
	ReviewCount      int      `json:"reviewCount"`
	DeliveryCategory string   `json:"deliveryCategory"`
	DeliveryText     string   `json:"deliveryText,omitempty"`
	InStock          bool     `json:"inStock"`
	Title            string   `json:"title"`
	DisplayTitle     string   `json:"displayTitle"`
	Brand            string   `json:"brand"`
	ImageURL         string   `json:"imageUrl"`
	ProductURL       string   `json:"productUrl"`
	Features         []string `json:"features,omitempty"`
}

// SortKey selects the ranking criterion
type SortKey string

const (
	SortByPrice    SortKey = "price"
	SortByRating   SortKey = "rating"
	SortByDiscount SortKey = "discount"
	SortByDelivery SortKey = "delivery"
)

// ParseSortKey validates a user-supplied sort key. Empty input selects price.
func ParseSortKey(s string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(s))); key {
	case "":
		return SortByPrice, nil
	case SortByPrice, SortByRating, SortByDiscount, SortByDelivery:
		return key, nil
	default:
		return "", ErrInvalidSortKey
	}
}

// RankingResult is an ordered offer list plus derived price figures
type RankingResult struct {
	SortKey     SortKey `json:"sortKey"`
	Offers      []Offer `json:"offers"`
	LowestPrice float64 `json:"lowestPrice"`
	MaxSavings  float64 `json:"maxSavings"`
}

// DealQuery identifies one deal lookup
type DealQuery struct {
	Product  string `json:"product"`
	SearchID int64  `json:"searchId"` // 0 for manual searches
	Pincode  string `json:"pincode,omitempty"`
}

// Comparison is the full response for one deal lookup
type Comparison struct {
	Query     DealQuery     `json:"query"`
	Result    RankingResult `json:"result"`
	Excluded  []string      `json:"excluded,omitempty"` // retailer keys without a usable offer
	Source    string        `json:"source"`             // "backend" or "cache"
	FetchedAt time.Time     `json:"fetchedAt"`
}

// ImageIdentification is the backend's answer to an image upload
type ImageIdentification struct {
	Product  string `json:"product"`
	SearchID int64  `json:"searchId"`
}

// ManualSearchRequest is the body of a manual (text) search
type ManualSearchRequest struct {
	Query   string `json:"query" binding:"required"`
	Pincode string `json:"pincode,omitempty"`
	Sort    string `json:"sort,omitempty"`
}

package usecase

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/pricelens/gateway/internal/domain"
)

// Delivery priorities, lower ships sooner
const (
	priorityToday    = 0
	priorityTomorrow = 1
	priorityExpress  = 2
	priorityWeekend  = 3
	priorityDayRange = 4
	priorityOther    = 5
)

// Rank returns a new slice of offers ordered by key. Every ordering is stable,
// so offers with equal keys keep their input order. Unknown keys return the
// offers in input order. The input slice is not modified.
func Rank(offers []domain.Offer, key domain.SortKey) []domain.Offer {
	ranked := slices.Clone(offers)
	if ranked == nil {
		ranked = []domain.Offer{}
	}

	switch key {
	case domain.SortByPrice:
		slices.SortStableFunc(ranked, func(a, b domain.Offer) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case domain.SortByRating:
		slices.SortStableFunc(ranked, func(a, b domain.Offer) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
	case domain.SortByDiscount:
		slices.SortStableFunc(ranked, func(a, b domain.Offer) int {
			return cmp.Compare(DiscountPercent(b), DiscountPercent(a))
		})
	case domain.SortByDelivery:
		slices.SortStableFunc(ranked, func(a, b domain.Offer) int {
			return cmp.Compare(DeliveryPriority(a.DeliveryCategory), DeliveryPriority(b.DeliveryCategory))
		})
	}

	return ranked
}

// DiscountPercent is the rounded percentage saved against the original
// price, or 0 when there is no higher original price
func DiscountPercent(o domain.Offer) int {
	if o.OriginalPrice <= o.Price || o.OriginalPrice <= 0 {
		return 0
	}
	return int(math.Round((o.OriginalPrice - o.Price) / o.OriginalPrice * 100))
}

// DeliveryPriority orders delivery categories from soonest to unknown
func DeliveryPriority(category string) int {
	switch {
	case category == domain.DeliveryToday:
		return priorityToday
	case category == domain.DeliveryTomorrow:
		return priorityTomorrow
	case strings.Contains(category, "Express"):
		return priorityExpress
	case category == domain.DeliveryWeekend:
		return priorityWeekend
	case dayRangePattern.MatchString(category):
		return priorityDayRange
	default:
		return priorityOther
	}
}

// LowestPrice returns the minimum price, or 0 for no offers
func LowestPrice(offers []domain.Offer) float64 {
	if len(offers) == 0 {
		return 0
	}
	lowest := offers[0].Price
	for _, o := range offers[1:] {
		lowest = min(lowest, o.Price)
	}
	return lowest
}

// MaxSavings returns the spread between the most and least expensive offers,
// or 0 when fewer than two offers are present
func MaxSavings(offers []domain.Offer) float64 {
	if len(offers) < 2 {
		return 0
	}
	lowest, highest := offers[0].Price, offers[0].Price
	for _, o := range offers[1:] {
		lowest = min(lowest, o.Price)
		highest = max(highest, o.Price)
	}
	return highest - lowest
}

// BuildRankingResult ranks offers and attaches the derived price figures
func BuildRankingResult(offers []domain.Offer, key domain.SortKey) domain.RankingResult {
	return domain.RankingResult{
		SortKey:     key,
		Offers:      Rank(offers, key),
		LowestPrice: LowestPrice(offers),
		MaxSavings:  MaxSavings(offers),
	}
}

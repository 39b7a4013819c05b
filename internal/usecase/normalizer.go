package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/infrastructure/retailers"
)

// PlaceholderImage is used when a retailer sends no product image
const PlaceholderImage = "/static/images/product-placeholder.png"

// Raw field aliases, in lookup order
var (
	priceFields         = []string{"price", "current_price", "selling_price", "sale_price"}
	originalPriceFields = []string{"original_price", "mrp", "list_price", "old_price"}
	ratingFields        = []string{"rating", "stars", "average_rating"}
	reviewFields        = []string{"reviews", "review_count", "reviews_count", "ratings_count"}
	deliveryFields      = []string{"delivery_date", "delivery_info", "delivery", "delivery_time"}
	stockFields         = []string{"in_stock", "availability", "stock_status", "stock"}
	titleFields         = []string{"title", "name", "product_name"}
	brandFields         = []string{"brand"}
	imageFields         = []string{"image", "image_url", "thumbnail", "img"}
	urlFields           = []string{"url", "product_url", "link"}
	featureFields       = []string{"features", "features_string", "description"}
)

// Package-level compiled patterns
var (
	numberPattern       = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	dayRangePattern     = regexp.MustCompile(`(\d+)\s*(?:-|–|to)\s*(\d+)\s*(?:business\s+|working\s+)?days?`)
	brandLabelPattern   = regexp.MustCompile(`(?i)\bbrand\s*:\s*([^,|\n]+)`)
	byBrandPattern      = regexp.MustCompile(`\b[Bb]y\s+([A-Z][\w&.'-]*(?:\s+[A-Z][\w&.'-]*)*)`)
	capsRunPattern      = regexp.MustCompile(`^([A-Z][A-Z0-9&'-]+(?:\s+[A-Z][A-Z0-9&'-]+)*)\b`)
	featureSplitPattern = regexp.MustCompile(`\r?\n|\||;|•`)
)

// Normalizer turns raw retailer payloads into offers. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	retailers domain.RetailerDirectory
}

// NewNormalizer creates a normalizer. A nil directory uses the built-in table.
func NewNormalizer(dir domain.RetailerDirectory) *Normalizer {
	if dir == nil {
		dir = retailers.Default()
	}
	return &Normalizer{retailers: dir}
}

// Normalize converts one retailer payload into an Offer. The boolean is false
// when the payload is absent, flagged as an error, or has no usable price.
func (n *Normalizer) Normalize(retailerKey string, raw domain.RawOfferPayload) (domain.Offer, bool) {
	if raw == nil || hasErrorFlag(raw) {
		return domain.Offer{}, false
	}

	priceValue, _ := firstValue(raw, priceFields)
	price, ok := ParsePrice(priceValue)
	if !ok {
		return domain.Offer{}, false
	}

	key := strings.ToLower(strings.TrimSpace(retailerKey))
	info := n.retailers.Lookup(key)

	offer := domain.Offer{
		RetailerKey: key,
		DisplayName: info.Name,
		LogoURL:     info.Logo,
		Price:       price,
		ImageURL:    PlaceholderImage,
		InStock:     true,
	}

	if v, ok := firstValue(raw, originalPriceFields); ok {
		if original, ok := ParsePrice(v); ok {
			offer.OriginalPrice = original
		}
	}

	if v, ok := firstValue(raw, ratingFields); ok {
		offer.Rating = parseRating(v)
	}

	if v, ok := firstValue(raw, reviewFields); ok {
		offer.ReviewCount = parseCount(v)
	}

	deliveryValue, _ := firstValue(raw, deliveryFields)
	offer.DeliveryText = strings.TrimSpace(asString(deliveryValue))
	offer.DeliveryCategory = CategorizeDelivery(offer.DeliveryText)

	if v, ok := firstValue(raw, stockFields); ok {
		offer.InStock = parseStock(v)
	}

	titleValue, _ := firstValue(raw, titleFields)
	offer.Title = strings.TrimSpace(asString(titleValue))

	brandValue, _ := firstValue(raw, brandFields)
	offer.Brand = brandFromField(asString(brandValue))
	if offer.Brand == "" {
		offer.Brand = ExtractBrand(offer.Title)
	}
	offer.DisplayTitle = stripBrandPrefix(offer.Title, offer.Brand)

	if v, ok := firstValue(raw, imageFields); ok {
		if img := strings.TrimSpace(asString(v)); img != "" {
			offer.ImageURL = img
		}
	}

	urlValue, _ := firstValue(raw, urlFields)
	offer.ProductURL = strings.TrimSpace(asString(urlValue))

	if v, ok := firstValue(raw, featureFields); ok {
		offer.Features = parseFeatures(v)
	}

	return offer, true
}

// NormalizeAll normalizes every retailer in key order so ranking ties are
// deterministic. Keys that produce no offer are returned as excluded.
func (n *Normalizer) NormalizeAll(resp domain.RetailerResponse) (offers []domain.Offer, excluded []string) {
	keys := make([]string, 0, len(resp))
	for k := range resp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	offers = make([]domain.Offer, 0, len(keys))
	for _, k := range keys {
		if offer, ok := n.Normalize(k, resp[k]); ok {
			offers = append(offers, offer)
		} else {
			excluded = append(excluded, strings.ToLower(strings.TrimSpace(k)))
		}
	}
	return offers, excluded
}

// ParsePrice reads a price from a number or a formatted string such as
// "₹1,299.00". Negative and non-finite values are rejected; zero is valid.
func ParsePrice(v any) (float64, bool) {
	price, ok := parseNumber(v)
	if !ok || price < 0 {
		return 0, false
	}
	return price, true
}

// CategorizeDelivery maps free-text delivery estimates to a category.
// Matching is case-insensitive and the first matching rule wins. Text that
// matches no rule is returned unchanged.
func CategorizeDelivery(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case trimmed == "":
		return domain.DeliveryCheckOnSite
	case strings.Contains(lower, "today") || strings.Contains(lower, "same day"):
		return domain.DeliveryToday
	case strings.Contains(lower, "tomorrow"):
		return domain.DeliveryTomorrow
	case strings.Contains(lower, "saturday") || strings.Contains(lower, "sunday") || strings.Contains(lower, "weekend"):
		return domain.DeliveryWeekend
	}

	if m := dayRangePattern.FindStringSubmatch(lower); m != nil {
		return m[1] + "-" + m[2] + " days"
	}
	if strings.Contains(lower, "order within") {
		return domain.DeliveryExpress
	}
	return text
}

// ExtractBrand guesses a brand from a product title. It tries, in order,
// a "Brand: X" label, a "by X" credit, a leading run of all-caps words and
// a fully uppercase first word. No match returns "".
func ExtractBrand(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	if m := brandLabelPattern.FindStringSubmatch(title); m != nil {
		if brand := strings.TrimSpace(m[1]); brand != "" {
			return brand
		}
	}
	if m := byBrandPattern.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := capsRunPattern.FindStringSubmatch(title); m != nil {
		if brand := strings.TrimRight(m[1], "&'-"); len(brand) > 1 {
			return brand
		}
	}

	first := strings.Trim(strings.Fields(title)[0], ",.:;!?()[]")
	if hasLetter(first) && first == strings.ToUpper(first) {
		return first
	}
	return ""
}

// brandFromField cleans an explicit brand value, which some retailers send
// as a "Brand: X" byline
func brandFromField(s string) string {
	s = strings.TrimSpace(s)
	if m := brandLabelPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// stripBrandPrefix removes a leading brand (or "Brand: X" label) from the
// title for display. The original title is kept if nothing would remain.
func stripBrandPrefix(title, brand string) string {
	if title == "" || brand == "" {
		return title
	}

	rest := ""
	if loc := brandLabelPattern.FindStringIndex(title); loc != nil && loc[0] == 0 {
		rest = title[loc[1]:]
	} else if len(title) >= len(brand) && strings.EqualFold(title[:len(brand)], brand) {
		rest = title[len(brand):]
		if rest != "" && !strings.ContainsRune(" -:,|", []rune(rest)[0]) {
			// brand is only a prefix of the first word
			return title
		}
	} else {
		return title
	}

	rest = strings.TrimLeft(rest, " -:,|")
	if rest == "" {
		return title
	}
	return rest
}

// hasErrorFlag reports whether the payload carries a truthy "error" field
func hasErrorFlag(raw domain.RawOfferPayload) bool {
	v, ok := raw["error"]
	if !ok || v == nil {
		return false
	}
	switch e := v.(type) {
	case bool:
		return e
	case string:
		s := strings.ToLower(strings.TrimSpace(e))
		return s != "" && s != "false" && s != "0"
	case float64:
		return e != 0
	case json.Number:
		f, err := e.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

// firstValue returns the first alias holding a non-nil, non-blank value
func firstValue(raw domain.RawOfferPayload, aliases []string) (any, bool) {
	for _, field := range aliases {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// asString renders scalar JSON values as text
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// parseNumber reads a finite number from a JSON scalar. Strings have
// thousands separators removed and the first number in them is used.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		match := numberPattern.FindString(strings.ReplaceAll(n, ",", ""))
		if match == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseRating reads "4.2", 4.2 or "4.2 out of 5" and clamps to [0,5]
func parseRating(v any) float64 {
	rating, ok := parseNumber(v)
	if !ok || rating < 0 {
		return 0
	}
	return math.Min(rating, 5)
}

// parseCount reads review counts such as 1234 or "1,234 ratings".
// Counts outside [0, MaxInt32] are treated as malformed.
func parseCount(v any) int {
	count, ok := parseNumber(v)
	if !ok || count < 0 || count > math.MaxInt32 {
		return 0
	}
	return int(math.Round(count))
}

// parseStock interprets booleans, stock counts and availability text.
// Anything not explicitly negative counts as in stock.
func parseStock(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case string:
		return stockFromText(s)
	default:
		if n, ok := parseNumber(v); ok {
			return n > 0
		}
		return true
	}
}

func stockFromText(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case "", "true", "yes", "y", "1":
		return true
	case "false", "no", "n", "0":
		return false
	}

	// negative phrases first: "unavailable" contains "available"
	for _, phrase := range []string{"out of stock", "unavailable", "not available", "sold out"} {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

// parseFeatures accepts a list of strings, an HTML fragment with list items,
// or delimited text
func parseFeatures(v any) []string {
	var features []string
	switch f := v.(type) {
	case []any:
		for _, item := range f {
			if s := strings.TrimSpace(asString(item)); s != "" {
				features = append(features, s)
			}
		}
	case []string:
		for _, item := range f {
			if s := strings.TrimSpace(item); s != "" {
				features = append(features, s)
			}
		}
	case string:
		features = splitFeatureText(f)
	}
	return features
}

func splitFeatureText(text string) []string {
	if strings.Contains(text, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			var items []string
			doc.Find("li").Each(func(_ int, s *goquery.Selection) {
				if item := collapseSpaces(s.Text()); item != "" {
					items = append(items, item)
				}
			})
			if len(items) > 0 {
				return items
			}
			text = doc.Text()
		}
	}

	var features []string
	for _, part := range featureSplitPattern.Split(text, -1) {
		if item := collapseSpaces(strings.TrimLeft(strings.TrimSpace(part), "-*")); item != "" {
			features = append(features, item)
		}
	}
	return features
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

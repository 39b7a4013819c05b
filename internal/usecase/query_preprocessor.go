package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// maxQueryRunes bounds the product query forwarded to the backend
const maxQueryRunes = 120

// Compiled regex patterns for query preprocessing
var (
	// Characters the backend's scrapers choke on in search URLs
	unsafeQueryChars = regexp.MustCompile(`[<>{}\[\]\\^~` + "`" + `|]`)

	// Multiple spaces cleanup
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// QueryPreprocessor cleans user-entered product queries before they are sent
// to the backend or used as cache keys
type QueryPreprocessor struct {
	logger *zap.Logger
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(logger *zap.Logger) *QueryPreprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPreprocessor{logger: logger}
}

// Clean strips control and unsafe characters, replaces "&" with "and",
// collapses whitespace and caps the length at a word boundary.
// Product details such as storage size or colour are kept.
func (p *QueryPreprocessor) Clean(query string) string {
	original := query

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, query)

	cleaned = strings.ReplaceAll(cleaned, "&", " and ")
	cleaned = unsafeQueryChars.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); len(runes) > maxQueryRunes {
		cleaned = string(runes[:maxQueryRunes])
		// Try to cut at word boundary
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > len(cleaned)/2 {
			cleaned = cleaned[:lastSpace]
		}
	}

	if cleaned != original {
		p.logger.Debug("query cleaned", zap.String("input", original), zap.String("output", cleaned))
	}
	return cleaned
}

// CacheKey builds a normalized cache key for a deal lookup.
// Format: "deals:{lowercased query}:{search id}:{pincode}"
func (p *QueryPreprocessor) CacheKey(query string, searchID int64, pincode string) string {
	var b strings.Builder
	b.WriteString("deals:")
	b.WriteString(strings.ToLower(p.Clean(query)))
	b.WriteString(":")
	b.WriteString(strconv.FormatInt(searchID, 10))
	b.WriteString(":")
	b.WriteString(strings.TrimSpace(pincode))
	return b.String()
}

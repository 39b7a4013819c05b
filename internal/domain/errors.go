package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrInvalidSortKey is returned for an unknown ranking criterion
	ErrInvalidSortKey = errors.New("sort must be one of: price, rating, discount, delivery")

	// ErrBackendFailure is returned when a price-comparison backend request fails
	ErrBackendFailure = errors.New("price backend request failed")

	// ErrInvalidBackendResponse is returned when the backend body cannot be decoded
	ErrInvalidBackendResponse = errors.New("price backend returned an unreadable response")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrNoResult is returned when a session has no committed comparison yet
	ErrNoResult = errors.New("no comparison recorded for session")

	// ErrSuperseded is returned when a newer lookup was started for the same session
	ErrSuperseded = errors.New("superseded by a newer request")
)

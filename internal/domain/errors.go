package domain

import "errors"

// Sentinel errors shared across packages. Callers wrap them with context and
// match with errors.Is.
var (
	// ErrCatalogUnavailable means the reference dataset is missing or corrupt.
	ErrCatalogUnavailable = errors.New("geo catalog unavailable")
	// ErrUnknownArea means a district/taluka pair is not in the catalog.
	ErrUnknownArea = errors.New("unknown area")
	// ErrStoreUnavailable means durable storage could not be read or written.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrRecipientNotFound means the transport reports the identity no longer exists.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrRateLimited means the transport throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrFeedUnavailable means a weather or fire provider could not be reached.
	ErrFeedUnavailable = errors.New("feed unavailable")
)

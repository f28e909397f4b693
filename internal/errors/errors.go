// Package errors classifies synchronization failures.
//
// Every recovered failure is labeled with a [Kind] so run records and
// logs distinguish contention (retry next run) from access problems
// (needs operator attention) from data problems (needs a human to look
// at the snapshot).
package errors

import (
	"errors"

	"github.com/vibevesselio/snapsync/internal/drive"
	"github.com/vibevesselio/snapsync/internal/locksvc"
	"github.com/vibevesselio/snapsync/internal/notion"
)

// Kind labels a class of synchronization failure.
type Kind string

const (
	// KindContention means a lock was held elsewhere. Expected under
	// overlapping schedules; the next run retries.
	KindContention Kind = "contention"
	// KindAccess means the remote rejected credentials or permissions.
	KindAccess Kind = "access"
	// KindNotFound means a referenced collection, page or file is gone.
	KindNotFound Kind = "not_found"
	// KindRateLimited means retries were exhausted against the API
	// rate limit.
	KindRateLimited Kind = "rate_limited"
	// KindTransient means a server error or I/O failure that a later
	// run may not see.
	KindTransient Kind = "transient"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, locksvc.ErrNotAcquired) {
		return KindContention
	}
	if errors.Is(err, drive.ErrNotFound) {
		return KindNotFound
	}
	var apiErr *notion.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 401 || apiErr.Status == 403:
			return KindAccess
		case apiErr.Status == 404:
			return KindNotFound
		case apiErr.IsRateLimited():
			return KindRateLimited
		case apiErr.IsServerError():
			return KindTransient
		}
		return KindUnknown
	}
	var storeErr *drive.Error
	if errors.As(err, &storeErr) {
		switch {
		case storeErr.Status == 401 || storeErr.Status == 403:
			return KindAccess
		case storeErr.Status == 404:
			return KindNotFound
		case storeErr.Status == 429:
			return KindRateLimited
		case storeErr.Status >= 500:
			return KindTransient
		}
		return KindUnknown
	}
	return KindUnknown
}

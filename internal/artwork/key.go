// Package artwork implements the thumbnail subsystem: a bounded, cost-aware
// in-memory cache in front of a concurrency-limited decode/downsample pipeline.
// It supplies decoded album artwork to many simultaneously rendering rows
// without exhausting memory or CPU, and cancels work for rows that disappear
// before their decode completes.
package artwork

import "strconv"

// Purpose distinguishes renderings of the same source image so that a grid
// thumbnail and a list thumbnail never collide in the cache.
type Purpose string

const (
	PurposeGrid Purpose = "grid"
	PurposeList Purpose = "list"
)

// CacheKey identifies one rendering of one entity's artwork. Two requests for
// the same rendering converge on the same cache slot regardless of call site.
type CacheKey struct {
	EntityID  string
	Purpose   Purpose
	SizeBound int
}

// NewCacheKey builds the key for entityID rendered for purpose at sizeBound.
func NewCacheKey(entityID string, purpose Purpose, sizeBound int) CacheKey {
	return CacheKey{EntityID: entityID, Purpose: purpose, SizeBound: sizeBound}
}

// String returns a stable textual form, used for logging and coalescing keys.
func (k CacheKey) String() string {
	return k.EntityID + "|" + string(k.Purpose) + "|" + strconv.Itoa(k.SizeBound)
}

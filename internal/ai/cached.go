package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"atsboost/internal/cache"
	apperrors "atsboost/internal/errors"
	"atsboost/internal/types"
)

// CachedAnalyzer memoises results of next in a capability cache
type CachedAnalyzer struct {
	next   Analyzer
	cache  cache.Cache
	ttl    time.Duration
	source string
	logger *apperrors.Logger
}

var _ Analyzer = (*CachedAnalyzer)(nil)

func NewCachedAnalyzer(next Analyzer, c cache.Cache, ttl time.Duration, logger *apperrors.Logger) *CachedAnalyzer {
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	return &CachedAnalyzer{next: next, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedAnalyzer) Name() string { return c.next.Name() }

// StoreOnly restricts writes to results produced by source. Results from a
// fallback analyzer are still returned but never stored, so the preferred
// analyzer is asked again on the next request.
func (c *CachedAnalyzer) StoreOnly(source string) *CachedAnalyzer {
	c.source = source
	return c
}

// CacheKey derives the cache key for a request
func CacheKey(req types.AnalysisRequest) string {
	h := sha256.New()
	h.Write([]byte(req.CVText))
	h.Write([]byte{0})
	h.Write([]byte(req.JobDescription))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedAnalyzer) Analyze(ctx context.Context, req types.AnalysisRequest) (types.Analysis, error) {
	key := CacheKey(req)

	if raw, ok := c.cache.Get(ctx, key); ok {
		var cached types.Analysis
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Cached = true
			return cached, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", "key", key)
	}

	result, err := c.next.Analyze(ctx, req)
	if err != nil {
		return result, err
	}
	if c.source != "" && result.Source != c.source {
		c.logger.Debug("Skipping cache for fallback result", "key", key, "source", result.Source)
		return result, nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.LogError(err, "Failed to encode analysis for cache", "key", key)
		return result, nil
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.LogError(apperrors.NewStorageError(apperrors.ErrCodeCacheFailed, "cache write failed", err),
			"Analysis not cached", "key", key)
	}
	return result, nil
}

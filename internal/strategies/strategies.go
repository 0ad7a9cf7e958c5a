// Package strategies maps each cached resource type to its key layout, TTL
// class and invalidation fan-out.
package strategies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/querykey"
)

// TTL classes. Each resource type uses exactly one.
const (
	TTLShort    = 5 * time.Minute
	TTLMedium   = 30 * time.Minute
	TTLLong     = 24 * time.Hour
	TTLVeryLong = 7 * 24 * time.Hour
)

// Result sources
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// Result is what a strategy read returns. A database source means the caller
// must query the authoritative store and then call the matching setter.
type Result struct {
	Data   interface{} `json:"data,omitempty"`
	Source string      `json:"source"`
}

// Hit reports whether the result came from the cache
func (r Result) Hit() bool {
	return r.Source == SourceCache
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// Strategies applies per-resource caching policy on top of a cache service
type Strategies struct {
	cache  *cache.Service
	logger logrus.FieldLogger
}

// New creates the strategy set
func New(svc *cache.Service, logger logrus.FieldLogger) *Strategies {
	return &Strategies{
		cache:  svc,
		logger: logger.WithField("component", "strategies"),
	}
}

// BusinessKey is business:{id}, with a :detail variant
func BusinessKey(id string, includeDetails bool) string {
	if includeDetails {
		return fmt.Sprintf("business:%s:detail", id)
	}
	return "business:" + id
}

// BusinessListKey derives the key for a filtered, paginated listing
func BusinessListKey(filters map[string]interface{}, p *querykey.Pagination) string {
	return querykey.Generate("businesses", filters, p)
}

// SearchKey derives the key for a search over query, filters and pagination
func SearchKey(query string, filters map[string]interface{}, p *querykey.Pagination) string {
	if filters == nil {
		filters = map[string]interface{}{}
	}
	params := map[string]interface{}{
		"query":   query,
		"filters": filters,
	}
	if p != nil {
		params["page"] = p.Page
		params["limit"] = p.Limit
	}

	canonical, err := querykey.Canonical(params)
	if err != nil {
		canonical = fmt.Sprintf("%v", params)
	}
	return "search:" + querykey.Encode(canonical)
}

func UserKey(id string) string {
	return "user:" + id
}

func TrustKey(businessID string) string {
	return "trust:" + businessID
}

func ReviewsKey(businessID string, p querykey.Pagination) string {
	return fmt.Sprintf("reviews:%s:%s", businessID, p.Suffix())
}

func (s *Strategies) read(ctx context.Context, key string) Result {
	if data, found := s.cache.Get(ctx, key); found {
		return Result{Data: data, Source: SourceCache}
	}
	return Result{Source: SourceDatabase}
}

// GetBusiness reads a business by id
func (s *Strategies) GetBusiness(ctx context.Context, id string, includeDetails bool) Result {
	return s.read(ctx, BusinessKey(id, includeDetails))
}

// SetBusiness caches a business. A non-positive ttl uses the long class.
func (s *Strategies) SetBusiness(ctx context.Context, id string, data interface{}, includeDetails bool, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = TTLLong
	}
	return s.cache.Set(ctx, BusinessKey(id, includeDetails), data, ttl)
}

func (s *Strategies) GetBusinessList(ctx context.Context, filters map[string]interface{}, p *querykey.Pagination) Result {
	return s.read(ctx, BusinessListKey(filters, p))
}

func (s *Strategies) SetBusinessList(ctx context.Context, filters map[string]interface{}, p *querykey.Pagination, data interface{}) bool {
	return s.cache.Set(ctx, BusinessListKey(filters, p), data, TTLMedium)
}

func (s *Strategies) GetSearch(ctx context.Context, query string, filters map[string]interface{}, p *querykey.Pagination) Result {
	return s.read(ctx, SearchKey(query, filters, p))
}

func (s *Strategies) SetSearch(ctx context.Context, query string, filters map[string]interface{}, p *querykey.Pagination, data interface{}) bool {
	return s.cache.Set(ctx, SearchKey(query, filters, p), data, TTLShort)
}

func (s *Strategies) GetUser(ctx context.Context, id string) Result {
	return s.read(ctx, UserKey(id))
}

func (s *Strategies) SetUser(ctx context.Context, id string, data interface{}) bool {
	return s.cache.Set(ctx, UserKey(id), data, TTLLong)
}

func (s *Strategies) GetTrustScore(ctx context.Context, businessID string) Result {
	return s.read(ctx, TrustKey(businessID))
}

func (s *Strategies) SetTrustScore(ctx context.Context, businessID string, data interface{}) bool {
	return s.cache.Set(ctx, TrustKey(businessID), data, TTLVeryLong)
}

// TrustScore returns the cached score for businessID, computing and caching
// it with load on a miss
func (s *Strategies) TrustScore(ctx context.Context, businessID string, load func(context.Context) (float64, error)) (float64, error) {
	return cache.Remember(ctx, s.cache, TrustKey(businessID), TTLVeryLong, load)
}

func (s *Strategies) GetReviews(ctx context.Context, businessID string, p querykey.Pagination) Result {
	return s.read(ctx, ReviewsKey(businessID, p))
}

func (s *Strategies) SetReviews(ctx context.Context, businessID string, p querykey.Pagination, data interface{}) bool {
	return s.cache.Set(ctx, ReviewsKey(businessID, p), data, TTLShort)
}

// InvalidateBusiness drops everything that may reflect business id: its own
// keys, every listing and every search result. All steps run even when one
// fails; the result is true only if every step succeeded.
func (s *Strategies) InvalidateBusiness(ctx context.Context, id string) bool {
	ok := s.cache.Delete(ctx, BusinessKey(id, false))
	ok = s.cache.DeleteByPattern(ctx, "business:"+globEscaper.Replace(id)+":*") && ok
	ok = s.cache.DeleteByPattern(ctx, "businesses:*") && ok
	ok = s.cache.DeleteByPattern(ctx, "search:*") && ok
	ok = s.cache.Delete(ctx, TrustKey(id)) && ok
	ok = s.cache.DeleteByPattern(ctx, "reviews:"+globEscaper.Replace(id)+":*") && ok

	s.logInvalidation("business", id, ok)
	return ok
}

// InvalidateUser drops the user's keys and every listing
func (s *Strategies) InvalidateUser(ctx context.Context, id string) bool {
	ok := s.cache.Delete(ctx, UserKey(id))
	ok = s.cache.DeleteByPattern(ctx, "user:"+globEscaper.Replace(id)+":*") && ok
	ok = s.cache.DeleteByPattern(ctx, "businesses:*") && ok

	s.logInvalidation("user", id, ok)
	return ok
}

// InvalidateAll drops every key
func (s *Strategies) InvalidateAll(ctx context.Context) bool {
	ok := s.cache.DeleteByPattern(ctx, "*")
	s.logInvalidation("all", "*", ok)
	return ok
}

func (s *Strategies) logInvalidation(resource, id string, ok bool) {
	entry := s.logger.WithFields(logrus.Fields{"resource": resource, "id": id})
	if !ok {
		entry.Warn("Cache invalidation incomplete")
		return
	}
	entry.Debug("Cache invalidated")
}

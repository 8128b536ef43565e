// Package cache provides the Redis-backed result cache for bounding-box
// facility queries.
//
// Entries are stamped with a generation counter. Invalidate bumps the
// counter, orphaning every entry written under an older generation; orphans
// expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
)

const (
	defaultPrefix = "washroom:range"
	defaultTTL    = time.Minute
)

// Options configures a RangeCache.
type Options struct {
	Prefix string
	TTL    time.Duration
	Logger zerolog.Logger
}

// RangeCache stores range query results in Redis.
type RangeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// Open connects to Redis and verifies it with PING. An empty addr returns
// (nil, nil) so callers can run without a cache.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRangeCache wraps client.
func NewRangeCache(client *redis.Client, opts Options) *RangeCache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RangeCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: opts.Logger.With().Str("component", "range_cache").Logger(),
	}
}

type cachedFacility struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	Latitude         float64   `json:"lat"`
	Longitude        float64   `json:"lon"`
	OpeningHours     *string   `json:"opening_hours,omitempty"`
	WheelchairAccess bool      `json:"wheelchair_access"`
	OverallRating    float64   `json:"overall_rating"`
	RatingCount      int64     `json:"rating_count"`
	CreatedBy        *string   `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Get looks up a cached result. The returned key carries the generation
// observed before the caller queries storage and must be handed back to Set,
// so a result computed across an invalidation is never served.
func (c *RangeCache) Get(ctx context.Context, b domain.Bounds) (string, []domain.Facility, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", nil, false, err
	}
	key := c.entryKey(gen, b)

	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return key, nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("range cache get: %w", err)
	}

	var stored []cachedFacility
	if err := json.Unmarshal(payload, &stored); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		return key, nil, false, nil
	}
	facilities := make([]domain.Facility, 0, len(stored))
	for _, s := range stored {
		facilities = append(facilities, s.toDomain())
	}
	return key, facilities, true, nil
}

// Set stores facilities under a key previously returned by Get.
func (c *RangeCache) Set(ctx context.Context, key string, facilities []domain.Facility) error {
	if key == "" {
		return nil
	}
	stored := make([]cachedFacility, 0, len(facilities))
	for _, f := range facilities {
		stored = append(stored, fromDomain(f))
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode range cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("range cache set: %w", err)
	}
	return nil
}

// Invalidate orphans every cached entry.
func (c *RangeCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("range cache invalidate: %w", err)
	}
	return nil
}

func (c *RangeCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("range cache generation: %w", err)
	}
	return gen, nil
}

func (c *RangeCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RangeCache) entryKey(gen int64, b domain.Bounds) string {
	parts := []string{
		c.prefix,
		strconv.FormatInt(gen, 10),
		formatCoord(b.MinLat),
		formatCoord(b.MinLon),
		formatCoord(b.MaxLat),
		formatCoord(b.MaxLon),
	}
	return strings.Join(parts, ":")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fromDomain(f domain.Facility) cachedFacility {
	return cachedFacility{
		ID:               f.ID,
		Name:             f.Name,
		Description:      f.Description,
		Address:          f.Address,
		City:             f.City,
		Country:          f.Country,
		Latitude:         f.Location.Latitude,
		Longitude:        f.Location.Longitude,
		OpeningHours:     f.OpeningHours,
		WheelchairAccess: f.WheelchairAccess,
		OverallRating:    f.OverallRating,
		RatingCount:      f.RatingCount,
		CreatedBy:        f.CreatedBy,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

func (s cachedFacility) toDomain() domain.Facility {
	return domain.Facility{
		ID:               s.ID,
		Name:             s.Name,
		Description:      s.Description,
		Address:          s.Address,
		City:             s.City,
		Country:          s.Country,
		Location:         domain.Location{Latitude: s.Latitude, Longitude: s.Longitude},
		OpeningHours:     s.OpeningHours,
		WheelchairAccess: s.WheelchairAccess,
		OverallRating:    s.OverallRating,
		RatingCount:      s.RatingCount,
		CreatedBy:        s.CreatedBy,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// Package geo answers bounding-box queries over facility locations.
package geo

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
	"github.com/Clark-Hu/rate-the-washroom/internal/cache"
	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

const defaultOpTimeout = 5 * time.Second

// RangeCache caches range query results. Get returns a key that must be
// passed to Set for the same bounds.
type RangeCache interface {
	Get(ctx context.Context, b domain.Bounds) (string, []domain.Facility, bool, error)
	Set(ctx context.Context, key string, facilities []domain.Facility) error
	Invalidate(ctx context.Context) error
}

// Options tunes a Service.
type Options struct {
	OpTimeout time.Duration
	// Cache is optional.
	Cache  RangeCache
	Logger zerolog.Logger
}

// Service serves facility lookups.
type Service struct {
	facilities *repository.FacilitiesRepository
	cache      RangeCache
	opTimeout  time.Duration
	logger     zerolog.Logger
}

// NewService builds a Service over the facility repository.
func NewService(repo *repository.Repository, opts Options) *Service {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Service{
		facilities: repo.Facilities,
		cache:      opts.Cache,
		opTimeout:  timeout,
		logger:     opts.Logger.With().Str("component", "geo").Logger(),
	}
}

// FindInBounds returns every facility inside the closed rectangle b.
// Boundary points are included; result order is unspecified.
func (s *Service) FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.Facility, error) {
	if err := b.Validate(); err != nil {
		return nil, apperr.InvalidInput("bounds must satisfy -90 <= min_lat <= max_lat <= 90 and -180 <= min_lon <= max_lon <= 180")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var cacheKey string
	if s.cache != nil {
		key, cached, hit, err := s.cache.Get(ctx, b)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("range cache lookup failed")
		case hit:
			metrics.RangeCacheHits.Inc()
			return cached, nil
		default:
			metrics.RangeCacheMisses.Inc()
			cacheKey = key
		}
	}

	facilities, err := s.facilities.FindInBounds(ctx, b)
	if err != nil {
		return nil, s.fail("find_in_bounds", err)
	}

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, facilities); err != nil {
			s.logger.Warn().Err(err).Msg("range cache store failed")
		}
	}
	return facilities, nil
}

// GetFacility returns a single facility.
func (s *Service) GetFacility(ctx context.Context, id string) (domain.Facility, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return domain.Facility{}, apperr.InvalidInput("facility id must be a UUID")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	facility, err := s.facilities.GetByID(ctx, parsed.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Facility{}, apperr.NotFound("facility not found")
		}
		return domain.Facility{}, s.fail("get_facility", err)
	}
	return facility, nil
}

// CreateFacility validates and stores a new facility with zeroed aggregates,
// then invalidates cached ranges.
func (s *Service) CreateFacility(ctx context.Context, params repository.FacilityCreateParams) (domain.Facility, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return domain.Facility{}, apperr.InvalidInput("name is required")
	}
	loc := params.Location
	if math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude) ||
		loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return domain.Facility{}, apperr.InvalidInput("lat must be within [-90, 90] and long within [-180, 180]")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	facility, err := s.facilities.Create(ctx, params)
	if err != nil {
		return domain.Facility{}, s.fail("create_facility", err)
	}
	if s.cache != nil {
		cache.InvalidateWithRetry(ctx, s.cache, s.logger)
	}
	return facility, nil
}

func (s *Service) fail(op string, err error) error {
	classified := store.Classify(err)
	if apperr.KindOf(classified) == apperr.KindInternal {
		s.logger.Error().Err(err).Str("op", op).Msg("facility query failed")
	}
	return classified
}

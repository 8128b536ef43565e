// Package reviews implements the review upsert service: at most one review
// per (facility, author) and a facility aggregate that always matches the
// review rows, both maintained inside a single transaction per mutation.
package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
	"github.com/Clark-Hu/rate-the-washroom/internal/cache"
	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

const (
	defaultOpTimeout  = 5 * time.Second
	defaultMaxRetries = 3
)

// CacheInvalidator drops derived read caches after a committed mutation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Options tunes a Service.
type Options struct {
	// OpTimeout bounds every service call; zero uses the default.
	OpTimeout time.Duration
	// MaxRetries bounds replays of transactions aborted by serialization
	// failures or deadlocks. Zero uses the default; negative disables retries.
	MaxRetries int
	// Invalidator is optional.
	Invalidator CacheInvalidator
	Logger      zerolog.Logger
}

// Service owns every review mutation and the aggregate recomputation tied to it.
type Service struct {
	store       *store.Store
	repo        *repository.Repository
	logger      zerolog.Logger
	invalidator CacheInvalidator
	opTimeout   time.Duration
	maxRetries  int
}

// SubmitParams is the payload of SubmitReview.
type SubmitParams struct {
	FacilityID string
	AuthorID   string
	Rating     int
	Title      *string
	Body       *string
}

// EditParams is a partial update; nil fields stay unchanged.
type EditParams struct {
	Rating *int
	Title  *string
	Body   *string
}

// NewService wires a Service on top of the store and its repositories.
func NewService(st *store.Store, repo *repository.Repository, opts Options) *Service {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	retries := opts.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}
	return &Service{
		store:       st,
		repo:        repo,
		logger:      opts.Logger.With().Str("component", "reviews").Logger(),
		invalidator: opts.Invalidator,
		opTimeout:   timeout,
		maxRetries:  retries,
	}
}

// SubmitReview creates the caller's review for a facility or, when one
// already exists, overwrites it in place. Any duplicate rows left for the
// pair are deleted, keeping the most recently modified one. The returned
// flag reports whether a new review was created.
func (s *Service) SubmitReview(ctx context.Context, params SubmitParams) (domain.Review, bool, error) {
	facilityID, err := parseID("facility id", params.FacilityID)
	if err != nil {
		return domain.Review{}, false, err
	}
	authorID := strings.TrimSpace(params.AuthorID)
	if authorID == "" {
		return domain.Review{}, false, apperr.InvalidInput("author id is required")
	}
	if !domain.ValidRating(params.Rating) {
		return domain.Review{}, false, apperr.InvalidInput("rating must be an integer between 1 and 5")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var (
		review  domain.Review
		created bool
		removed int
	)
	err = s.runTx(ctx, "submit", func(repo *repository.Repository) error {
		if err := repo.Facilities.LockForUpdate(ctx, facilityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("facility not found")
			}
			return err
		}

		existing, err := repo.Reviews.ListForPair(ctx, facilityID, authorID)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			review, err = repo.Reviews.Insert(ctx, repository.ReviewInsertParams{
				FacilityID: facilityID,
				AuthorID:   authorID,
				Rating:     params.Rating,
				Title:      params.Title,
				Body:       params.Body,
			})
			if err != nil {
				return err
			}
			created, removed = true, 0
		} else {
			review, err = repo.Reviews.Overwrite(ctx, existing[0].ID, params.Rating, params.Title, params.Body)
			if err != nil {
				return err
			}
			for _, dup := range existing[1:] {
				if err := repo.Reviews.Delete(ctx, dup.ID); err != nil {
					return err
				}
			}
			created, removed = false, len(existing)-1
		}

		_, err = s.recompute(ctx, repo, facilityID)
		return err
	})
	if err != nil {
		return domain.Review{}, false, s.fail("submit", err)
	}

	op := "update"
	if created {
		op = "create"
	}
	metrics.ReviewMutations.WithLabelValues(op, "ok").Inc()
	if removed > 0 {
		metrics.DuplicatesRemoved.Add(float64(removed))
		s.logger.Warn().
			Str("facility_id", facilityID).
			Str("author_id", authorID).
			Int("removed", removed).
			Msg("converged duplicate reviews")
	}
	s.invalidate(ctx)
	return review, created, nil
}

// EditReview applies a partial update to a review owned by the caller.
func (s *Service) EditReview(ctx context.Context, reviewID, callerID string, params EditParams) (domain.Review, error) {
	id, err := parseID("review id", reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if params.Rating != nil && !domain.ValidRating(*params.Rating) {
		return domain.Review{}, apperr.InvalidInput("rating must be an integer between 1 and 5")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var review domain.Review
	err = s.runTx(ctx, "edit", func(repo *repository.Repository) error {
		current, err := s.lockOwnedReview(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		review, err = repo.Reviews.Patch(ctx, current.ID, repository.ReviewPatch{
			Rating: params.Rating,
			Title:  params.Title,
			Body:   params.Body,
		})
		if err != nil {
			return err
		}
		_, err = s.recompute(ctx, repo, current.FacilityID)
		return err
	})
	if err != nil {
		return domain.Review{}, s.fail("edit", err)
	}

	metrics.ReviewMutations.WithLabelValues("edit", "ok").Inc()
	s.invalidate(ctx)
	return review, nil
}

// DeleteReview removes a review owned by the caller.
func (s *Service) DeleteReview(ctx context.Context, reviewID, callerID string) error {
	id, err := parseID("review id", reviewID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	err = s.runTx(ctx, "delete", func(repo *repository.Repository) error {
		current, err := s.lockOwnedReview(ctx, repo, id, callerID)
		if err != nil {
			return err
		}
		if err := repo.Reviews.Delete(ctx, current.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("review not found")
			}
			return err
		}
		_, err = s.recompute(ctx, repo, current.FacilityID)
		return err
	})
	if err != nil {
		return s.fail("delete", err)
	}

	metrics.ReviewMutations.WithLabelValues("delete", "ok").Inc()
	s.invalidate(ctx)
	return nil
}

// ListByFacility returns a facility's reviews, newest first.
func (s *Service) ListByFacility(ctx context.Context, facilityID string) ([]domain.Review, error) {
	id, err := parseID("facility id", facilityID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	reviews, err := s.repo.Reviews.ListByFacility(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return reviews, nil
}

// ListByAuthor returns an author's reviews, newest first. Only the author may
// list them.
func (s *Service) ListByAuthor(ctx context.Context, authorID, callerID string) ([]domain.Review, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return nil, apperr.InvalidInput("author id is required")
	}
	if callerID != authorID {
		return nil, apperr.Forbidden("reviews can only be listed by their author")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	reviews, err := s.repo.Reviews.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, classify(err)
	}
	return reviews, nil
}

// Recompute rewrites a facility's aggregate from its review rows inside tx.
// A missing facility is a no-op and yields the aggregate of zero reviews.
func (s *Service) Recompute(ctx context.Context, tx pgx.Tx, facilityID string) (domain.Aggregate, error) {
	return s.recompute(ctx, s.repo.WithTx(tx), facilityID)
}

// PurgeAuthor deletes every review held by authorID inside tx and
// recomputes each affected facility. Facilities are locked one at a time in
// ascending id order, so concurrent purges and submits cannot deadlock. It
// returns the facilities whose aggregates were rewritten.
func (s *Service) PurgeAuthor(ctx context.Context, tx pgx.Tx, authorID string) ([]string, error) {
	repo := s.repo.WithTx(tx)
	facilityIDs, err := repo.Reviews.FacilitiesForAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	touched := make([]string, 0, len(facilityIDs))
	for _, facilityID := range facilityIDs {
		if err := repo.Facilities.LockForUpdate(ctx, facilityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		removed, err := repo.Reviews.DeleteForPair(ctx, facilityID, authorID)
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue
		}
		if _, err := s.recompute(ctx, repo, facilityID); err != nil {
			return nil, err
		}
		touched = append(touched, facilityID)
	}
	return touched, nil
}

// RebuildAll recomputes every facility's aggregate and returns how many
// facilities were rewritten.
func (s *Service) RebuildAll(ctx context.Context) (int64, error) {
	var touched int64
	err := s.runTx(ctx, "rebuild", func(repo *repository.Repository) error {
		var err error
		touched, err = repo.Facilities.RebuildAggregates(ctx)
		return err
	})
	if err != nil {
		return 0, s.fail("rebuild", err)
	}
	s.logger.Info().Int64("facilities", touched).Msg("rebuilt facility aggregates")
	s.invalidate(ctx)
	return touched, nil
}

func (s *Service) recompute(ctx context.Context, repo *repository.Repository, facilityID string) (domain.Aggregate, error) {
	count, sum, err := repo.Reviews.Totals(ctx, facilityID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	agg := domain.ComputeAggregate(count, sum)
	ok, err := repo.Facilities.SetAggregate(ctx, facilityID, agg)
	if err != nil {
		return domain.Aggregate{}, err
	}
	if !ok {
		s.logger.Debug().Str("facility_id", facilityID).Msg("aggregate target missing, skipped")
	}
	metrics.Recomputations.Inc()
	return agg, nil
}

// lockOwnedReview resolves the review's facility, takes the facility lock,
// then re-reads the review under a row lock. A review removed by a
// concurrent duplicate cleanup between the two reads is reported as missing.
func (s *Service) lockOwnedReview(ctx context.Context, repo *repository.Repository, id, callerID string) (domain.Review, error) {
	current, err := repo.Reviews.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Review{}, apperr.NotFound("review not found")
		}
		return domain.Review{}, err
	}
	if callerID == "" || current.AuthorID != callerID {
		return domain.Review{}, apperr.Forbidden("only the author may modify this review")
	}
	if err := repo.Facilities.LockForUpdate(ctx, current.FacilityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Review{}, apperr.NotFound("review not found")
		}
		return domain.Review{}, err
	}
	locked, err := repo.Reviews.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Review{}, apperr.NotFound("review not found")
		}
		return domain.Review{}, err
	}
	return locked, nil
}

// runTx executes fn in a transaction, replaying it while it fails with a
// retryable storage error.
func (s *Service) runTx(ctx context.Context, op string, fn func(*repository.Repository) error) error {
	return s.store.InTxRetry(ctx, s.maxRetries, func(attempt int, err error) {
		metrics.TxRetries.WithLabelValues(op).Inc()
		s.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("retrying transaction")
	}, func(tx pgx.Tx) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *Service) fail(op string, err error) error {
	classified := classify(err)
	kind := apperr.KindOf(classified)
	metrics.ReviewMutations.WithLabelValues(op, string(kind)).Inc()

	switch kind {
	case apperr.KindInternal:
		s.logger.Error().Err(err).Str("op", op).Msg("review operation failed")
	case apperr.KindUnavailable, apperr.KindConflict:
		s.logger.Warn().Err(err).Str("op", op).Msg("review operation aborted")
	}
	return classified
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	cache.InvalidateWithRetry(ctx, s.invalidator, s.logger)
}

func parseID(field, raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.InvalidInput(field + " must be a UUID")
	}
	return id.String(), nil
}

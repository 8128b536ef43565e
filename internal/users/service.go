// Package users manages the profile stored for each verified identity.
// Deleting a profile also deletes the caller's reviews and recomputes every
// affected facility in the same transaction.
package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
	"github.com/Clark-Hu/rate-the-washroom/internal/cache"
	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/reviews"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

const (
	defaultOpTimeout  = 5 * time.Second
	defaultMaxRetries = 3
	maxUsernameLen    = 50
)

// ReviewPurger removes an author's reviews inside a caller's transaction.
type ReviewPurger interface {
	PurgeAuthor(ctx context.Context, tx pgx.Tx, authorID string) ([]string, error)
}

// Options tunes a Service.
type Options struct {
	OpTimeout time.Duration
	// MaxRetries has the same meaning as reviews.Options.MaxRetries.
	MaxRetries int
	// Invalidator is optional.
	Invalidator reviews.CacheInvalidator
	Logger      zerolog.Logger
}

// SyncParams is the full profile written by Sync.
type SyncParams struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// UpdateParams is a partial profile update.
type UpdateParams struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// Service implements the profile operations.
type Service struct {
	store       *store.Store
	repo        *repository.Repository
	purger      ReviewPurger
	invalidator reviews.CacheInvalidator
	opTimeout   time.Duration
	maxRetries  int
	logger      zerolog.Logger
}

// NewService builds a Service. purger is normally the reviews.Service.
func NewService(st *store.Store, repo *repository.Repository, purger ReviewPurger, opts Options) *Service {
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
		purger:      purger,
		invalidator: opts.Invalidator,
		opTimeout:   timeout,
		maxRetries:  retries,
		logger:      opts.Logger.With().Str("component", "users").Logger(),
	}
}

// Sync creates the caller's profile or overwrites it. The flag reports
// whether the profile was created.
func (s *Service) Sync(ctx context.Context, callerID string, params SyncParams) (domain.User, bool, error) {
	if callerID == "" {
		return domain.User{}, false, apperr.Forbidden("identity required")
	}
	params = SyncParams{
		Username:  strings.TrimSpace(params.Username),
		Email:     strings.TrimSpace(params.Email),
		FirstName: strings.TrimSpace(params.FirstName),
		LastName:  strings.TrimSpace(params.LastName),
	}
	if err := validateUsername(params.Username); err != nil {
		return domain.User{}, false, err
	}
	if err := validateEmail(params.Email); err != nil {
		return domain.User{}, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	user, created, err := s.repo.Users.Upsert(ctx, repository.UserUpsertParams{
		ID:        callerID,
		Username:  params.Username,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
	})
	if err != nil {
		return domain.User{}, false, s.fail("sync", err)
	}
	return user, created, nil
}

// Me returns the caller's profile.
func (s *Service) Me(ctx context.Context, callerID string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	user, err := s.repo.Users.GetByID(ctx, callerID)
	if err != nil {
		return domain.User{}, s.fail("me", err)
	}
	return user, nil
}

// Update applies a partial update to the caller's own profile.
func (s *Service) Update(ctx context.Context, userID, callerID string, params UpdateParams) (domain.User, error) {
	if userID != callerID {
		return domain.User{}, apperr.Forbidden("profiles can only be changed by their owner")
	}
	patch := repository.UserPatch{
		Username:  trimPtr(params.Username),
		Email:     trimPtr(params.Email),
		FirstName: trimPtr(params.FirstName),
		LastName:  trimPtr(params.LastName),
	}
	if patch.Username != nil {
		if err := validateUsername(*patch.Username); err != nil {
			return domain.User{}, err
		}
	}
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return domain.User{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	user, err := s.repo.Users.Patch(ctx, userID, patch)
	if err != nil {
		return domain.User{}, s.fail("update", err)
	}
	return user, nil
}

// Delete removes the caller's profile together with every review they wrote,
// recomputing the aggregate of each affected facility before commit.
func (s *Service) Delete(ctx context.Context, userID, callerID string) error {
	if userID != callerID {
		return apperr.Forbidden("profiles can only be deleted by their owner")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var touched []string
	err := s.store.InTxRetry(ctx, s.maxRetries, func(attempt int, err error) {
		metrics.TxRetries.WithLabelValues("delete_user").Inc()
		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying user delete")
	}, func(tx pgx.Tx) error {
		if err := s.repo.WithTx(tx).Users.Delete(ctx, userID); err != nil {
			return err
		}
		var err error
		touched, err = s.purger.PurgeAuthor(ctx, tx, userID)
		return err
	})
	if err != nil {
		return s.fail("delete", err)
	}

	s.logger.Info().Str("user_id", userID).Int("facilities", len(touched)).Msg("deleted user")
	if len(touched) > 0 {
		metrics.ReviewMutations.WithLabelValues("purge", "ok").Add(float64(len(touched)))
		if s.invalidator != nil {
			cache.InvalidateWithRetry(ctx, s.invalidator, s.logger)
		}
	}
	return nil
}

// List returns every profile.
func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	users, err := s.repo.Users.List(ctx)
	if err != nil {
		return nil, s.fail("list", err)
	}
	return users, nil
}

func (s *Service) fail(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	classified := store.Classify(err)
	switch apperr.KindOf(classified) {
	case apperr.KindConflict:
		return apperr.Conflict("username or email already in use", err)
	case apperr.KindInternal:
		s.logger.Error().Err(err).Str("op", op).Msg("user operation failed")
	}
	return classified
}

func validateUsername(username string) error {
	if username == "" {
		return apperr.InvalidInput("username is required")
	}
	if len(username) > maxUsernameLen {
		return apperr.InvalidInput("username must be at most 50 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.InvalidInput("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.InvalidInput("email is invalid")
	}
	return nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

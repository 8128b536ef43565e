package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clark-Hu/rate-the-washroom/internal/auth"
	"github.com/Clark-Hu/rate-the-washroom/internal/cache"
	"github.com/Clark-Hu/rate-the-washroom/internal/config"
	"github.com/Clark-Hu/rate-the-washroom/internal/geo"
	httpserver "github.com/Clark-Hu/rate-the-washroom/internal/http"
	"github.com/Clark-Hu/rate-the-washroom/internal/logging"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/reviews"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
	"github.com/Clark-Hu/rate-the-washroom/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.Load()
	logger := logging.New("washroom-api", cfg.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()
	metrics.ObservePool(st.Stats)

	repo := repository.New(st)
	opTimeout := time.Duration(cfg.StoreOpTimeoutMs) * time.Millisecond

	reviewOpts := reviews.Options{
		OpTimeout:  opTimeout,
		MaxRetries: cfg.TxMaxRetries,
		Logger:     logger,
	}
	if cfg.TxMaxRetries == 0 {
		reviewOpts.MaxRetries = -1
	}
	geoOpts := geo.Options{OpTimeout: opTimeout, Logger: logger}
	userOpts := users.Options{
		OpTimeout:  opTimeout,
		MaxRetries: reviewOpts.MaxRetries,
		Logger:     logger,
	}
	deps := httpserver.Deps{
		Store:    st,
		Repo:     repo,
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Logger:   logger,
	}

	redisClient, err := cache.Open(dbCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		rangeCache := cache.NewRangeCache(redisClient, cache.Options{
			TTL:    time.Duration(cfg.RangeCacheTTLSecs) * time.Second,
			Logger: logger,
		})
		reviewOpts.Invalidator = rangeCache
		geoOpts.Cache = rangeCache
		userOpts.Invalidator = rangeCache
		logger.Info().Str("addr", cfg.RedisAddr).Msg("range cache enabled")
	}

	deps.Reviews = reviews.NewService(st, repo, reviewOpts)
	deps.Geo = geo.NewService(repo, geoOpts)
	deps.Users = users.NewService(st, repo, deps.Reviews, userOpts)
	server := httpserver.New(cfg, deps)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("listening")
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

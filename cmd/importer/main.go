package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/rate-the-washroom/internal/cache"
	"github.com/Clark-Hu/rate-the-washroom/internal/config"
	"github.com/Clark-Hu/rate-the-washroom/internal/logging"
	"github.com/Clark-Hu/rate-the-washroom/internal/opendata"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/reviews"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

func main() {
	var (
		file        = flag.String("file", "", "path to a local CSV export")
		sourceURL   = flag.String("url", "", "URL of the CSV export (defaults to OPENDATA_URL)")
		concurrency = flag.Int("concurrency", 4, "parallel inserts")
		rebuild     = flag.Bool("rebuild-aggregates", false, "recompute every facility aggregate after the import")
		skipImport  = flag.Bool("skip-import", false, "only run the aggregate rebuild")
	)
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.LoadImporter()
	logger := logging.New("washroom-importer", cfg.Environment)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.DBConnTimeoutSecs)*time.Second)
	defer cancel()
	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()
	repo := repository.New(st)

	svcOpts := reviews.Options{
		OpTimeout:  time.Duration(cfg.StoreOpTimeoutMs) * time.Millisecond,
		MaxRetries: cfg.TxMaxRetries,
		Logger:     logger,
	}
	if cfg.TxMaxRetries == 0 {
		svcOpts.MaxRetries = -1
	}
	redisClient, err := cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn().Err(err).Msg("range cache unavailable, skipping invalidation")
	}
	var rangeCache *cache.RangeCache
	if redisClient != nil {
		defer redisClient.Close()
		rangeCache = cache.NewRangeCache(redisClient, cache.Options{Logger: logger})
		svcOpts.Invalidator = rangeCache
	}
	svc := reviews.NewService(st, repo, svcOpts)

	if !*skipImport {
		source, err := buildSource(*file, *sourceURL, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("dataset source")
		}
		importer := opendata.NewImporter(source, repo.Facilities, opendata.ImporterOptions{
			Concurrency: *concurrency,
			Logger:      logger,
		})
		res, err := importer.Run(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("import failed")
		}
		logger.Info().
			Int("rows", res.Rows).
			Int("skipped", res.Skipped).
			Int64("inserted", res.Inserted).
			Int64("failed", res.Failed).
			Msg("import finished")
		if rangeCache != nil && res.Inserted > 0 {
			if err := rangeCache.Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Msg("range cache invalidation failed")
			}
		}
	}

	if *rebuild {
		touched, err := svc.RebuildAll(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("rebuild aggregates")
		}
		logger.Info().Int64("facilities", touched).Msg("aggregates rebuilt")
	}
}

func buildSource(file, rawURL string, cfg config.Config, logger zerolog.Logger) (opendata.Source, error) {
	if file != "" {
		return opendata.FileSource{Path: file}, nil
	}
	if rawURL == "" {
		rawURL = cfg.OpenDataURL
	}
	if rawURL == "" {
		return nil, errors.New("either -file, -url or OPENDATA_URL is required")
	}
	return opendata.NewHTTPClient(rawURL, time.Duration(cfg.OpenDataTimeoutSec)*time.Second, logger)
}

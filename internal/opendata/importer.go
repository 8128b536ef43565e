package opendata

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/metrics"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
)

const defaultConcurrency = 4

// FacilityCreator persists one facility.
type FacilityCreator interface {
	Create(ctx context.Context, params repository.FacilityCreateParams) (domain.Facility, error)
}

// Result summarises an import run.
type Result struct {
	Rows     int
	Skipped  int
	Inserted int64
	Failed   int64
}

// Importer loads a dataset into the facility table.
type Importer struct {
	source      Source
	creator     FacilityCreator
	concurrency int
	createdBy   *string
	logger      zerolog.Logger
}

// ImporterOptions tunes an Importer.
type ImporterOptions struct {
	Concurrency int
	// CreatedBy is stamped on every imported facility when set.
	CreatedBy *string
	Logger    zerolog.Logger
}

// NewImporter builds an Importer reading from source.
func NewImporter(source Source, creator FacilityCreator, opts ImporterOptions) *Importer {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Importer{
		source:      source,
		creator:     creator,
		concurrency: concurrency,
		createdBy:   opts.CreatedBy,
		logger:      opts.Logger.With().Str("component", "importer").Logger(),
	}
}

// Run fetches, parses and inserts the dataset. A failed insert is logged and
// counted; only source and parse errors or cancellation abort the run.
func (i *Importer) Run(ctx context.Context) (Result, error) {
	body, err := i.source.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	records, stats, err := Parse(body)
	body.Close()
	if err != nil {
		return Result{}, fmt.Errorf("parse dataset: %w", err)
	}
	metrics.ImportedFacilities.WithLabelValues("skipped").Add(float64(stats.Skipped))
	i.logger.Info().Int("rows", stats.Rows).Int("skipped", stats.Skipped).Msg("parsed dataset")

	var inserted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := i.creator.Create(gctx, i.params(rec)); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				metrics.ImportedFacilities.WithLabelValues("failed").Inc()
				i.logger.Warn().Err(err).Str("name", rec.Name).Msg("insert facility failed")
				return nil
			}
			inserted.Add(1)
			metrics.ImportedFacilities.WithLabelValues("inserted").Inc()
			return nil
		})
	}
	waitErr := g.Wait()

	res := Result{
		Rows:     stats.Rows,
		Skipped:  stats.Skipped,
		Inserted: inserted.Load(),
		Failed:   failed.Load(),
	}
	if waitErr != nil {
		return res, waitErr
	}
	return res, nil
}

func (i *Importer) params(rec Record) repository.FacilityCreateParams {
	return repository.FacilityCreateParams{
		Name:             rec.Name,
		Description:      rec.Description,
		Address:          rec.Address,
		City:             rec.City,
		Country:          rec.Country,
		Location:         rec.Location,
		OpeningHours:     rec.OpeningHours,
		WheelchairAccess: rec.WheelchairAccess,
		CreatedBy:        i.createdBy,
	}
}

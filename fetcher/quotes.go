package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketreplay/go-tick-fetch/config"
	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/marketreplay/go-tick-fetch/preclose"
	"github.com/marketreplay/go-tick-fetch/storage"
)

// QuoteFetcher drives the point-lookup adapter over a universe. It
// reuses the round controller: failed targets are re-fetched in
// retry rounds with halved concurrency, and the collected quotes are
// flushed as one table at the end.
type QuoteFetcher struct {
	cfg     *config.Config
	client  *preclose.Client
	store   *storage.Store
	Metrics *Metrics

	progress ProgressFunc
}

// NewQuoteFetcher builds a prior-close fetcher.
func NewQuoteFetcher(cfg *config.Config, client *preclose.Client, store *storage.Store) *QuoteFetcher {
	return &QuoteFetcher{
		cfg:     cfg,
		client:  client,
		store:   store,
		Metrics: NewMetrics(),
	}
}

// SetProgress installs a per-target completion callback.
func (q *QuoteFetcher) SetProgress(fn ProgressFunc) {
	q.progress = fn
}

// Run fetches prior-close quotes for all targets and writes the quote
// table plus a failure report into the run output directory.
func (q *QuoteFetcher) Run(ctx context.Context, date int, targets []models.Security) (*models.DownloadReport, error) {
	start := time.Now()
	writer := storage.NewQuoteWriter()

	slog.Info("starting prior-close download",
		slog.Int("date", date),
		slog.Int("targets", len(targets)),
		slog.Int("workers", q.cfg.QuoteWorkers),
	)

	ctrl := &Controller{
		MaxWorkers:      q.cfg.QuoteWorkers,
		FloorWorkers:    q.cfg.FloorWorkers,
		MaxRetry:        q.cfg.MaxRetry,
		RetryPause:      q.cfg.RetryPause,
		NoDataSkipRatio: q.cfg.NoDataSkipRatio,
		Progress:        q.progress,
		Metrics:         q.Metrics,
	}

	res := ctrl.Run(ctx, targets, func(ctx context.Context, sec models.Security) models.Outcome {
		quote, err := q.client.Quote(ctx, sec)
		if err != nil {
			q.Metrics.IncError(errorTypeLabel(err))
			return models.Outcome{Code: sec.Code, Kind: models.OutcomeFailed, Reason: err.Error()}
		}
		writer.Add(quote)
		return models.Outcome{Code: sec.Code, Kind: models.OutcomeSuccess, Records: 1}
	})

	quotePath, err := writer.Flush(q.store)
	if err != nil {
		return nil, err
	}
	slog.Info("prior-close table written", slog.String("path", quotePath), slog.Int("quotes", writer.Len()))

	report := &models.DownloadReport{
		Date:      date,
		Total:     len(targets),
		Success:   res.Success,
		Failures:  res.Failures,
		Rounds:    res.Rounds,
		Retries:   res.Retries,
		StartTime: start,
		EndTime:   time.Now(),
	}

	path, err := q.store.WriteFailureReport("failed_preclose.csv", report.Failures)
	if err != nil {
		return report, err
	}
	Summarize(report, path)
	return report, nil
}

package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketreplay/go-tick-fetch/config"
	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/marketreplay/go-tick-fetch/session"
	"github.com/marketreplay/go-tick-fetch/storage"
)

// Fetcher downloads intraday transactions for a whole universe on one
// trading date through the session protocol.
type Fetcher struct {
	cfg     *config.Config
	dialer  session.Dialer
	store   *storage.Store
	Metrics *Metrics

	progress ProgressFunc
}

// New builds a tick fetcher. dialer supplies protocol sessions and
// store owns the run output directory.
func New(cfg *config.Config, dialer session.Dialer, store *storage.Store) *Fetcher {
	return &Fetcher{
		cfg:     cfg,
		dialer:  dialer,
		store:   store,
		Metrics: NewMetrics(),
	}
}

// SetProgress installs a per-target completion callback.
func (f *Fetcher) SetProgress(fn ProgressFunc) {
	f.progress = fn
}

// Run probes the server pool once, drives the retry rounds over the
// universe and persists the failure report. Per-target failures never
// abort the run.
func (f *Fetcher) Run(ctx context.Context, date int, targets []models.Security) (*models.DownloadReport, error) {
	start := time.Now()

	pool := session.Probe(ctx, f.dialer, f.cfg.Servers, f.cfg.ProbeTimeout)
	if pool.Degraded {
		f.Metrics.SetServersHealthy(0)
	} else {
		f.Metrics.SetServersHealthy(len(pool.Servers))
	}

	slog.Info("starting download",
		slog.Int("date", date),
		slog.Int("targets", len(targets)),
		slog.String("output", f.store.Dir()),
	)

	ctrl := &Controller{
		MaxWorkers:      f.cfg.MaxWorkers,
		FloorWorkers:    f.cfg.FloorWorkers,
		MaxRetry:        f.cfg.MaxRetry,
		RetryPause:      f.cfg.RetryPause,
		NoDataSkipRatio: f.cfg.NoDataSkipRatio,
		Progress:        f.progress,
		Metrics:         f.Metrics,
	}

	res := ctrl.Run(ctx, targets, func(ctx context.Context, sec models.Security) models.Outcome {
		return f.attemptTicks(ctx, sec, date, pool)
	})

	report := &models.DownloadReport{
		Date:          date,
		Total:         len(targets),
		Success:       res.Success,
		Failures:      res.Failures,
		Rounds:        res.Rounds,
		Retries:       res.Retries,
		ProbeDegraded: pool.Degraded,
		StartTime:     start,
		EndTime:       time.Now(),
	}

	path, err := f.store.WriteFailureReport("failed_stocks.csv", report.Failures)
	if err != nil {
		return report, err
	}
	Summarize(report, path)
	return report, nil
}

// attemptTicks is one target's attempt in one round: resume guard
// first, then up to RetryCount servers in pool order. The last
// observed failure reason is recorded.
func (f *Fetcher) attemptTicks(ctx context.Context, sec models.Security, date int, pool session.Pool) models.Outcome {
	if f.store.HasTicks(sec.Code) {
		return models.Outcome{Code: sec.Code, Kind: models.OutcomeSuccess, Reason: "already downloaded"}
	}

	servers := pool.Servers
	if len(servers) > f.cfg.RetryCount {
		servers = servers[:f.cfg.RetryCount]
	}

	var lastErr error
	for _, srv := range servers {
		recs, err := f.fetchAllPages(ctx, srv, sec, date)
		if err != nil {
			lastErr = err
			f.Metrics.IncError(errorTypeLabel(err))
			continue
		}

		if len(recs) == 0 {
			return models.Outcome{Code: sec.Code, Kind: models.OutcomeNoData, Reason: "no data for date"}
		}

		if err := f.store.WriteTicks(ctx, sec, recs); err != nil {
			lastErr = err
			f.Metrics.IncError("storage")
			continue
		}

		return models.Outcome{Code: sec.Code, Kind: models.OutcomeSuccess, Records: len(recs)}
	}

	reason := "no server available"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return models.Outcome{Code: sec.Code, Kind: models.OutcomeFailed, Reason: reason}
}

// fetchAllPages runs the paginated retrieval loop against one server:
// fixed page size, strict append order, transient sentinel aborts the
// attempt, a short or empty page terminates it.
func (f *Fetcher) fetchAllPages(ctx context.Context, srv models.Server, sec models.Security, date int) ([]models.Transaction, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	sess, err := f.dialer.Connect(attemptCtx, srv)
	if err != nil {
		return nil, &ErrConnect{Server: srv, Err: err}
	}
	defer sess.Close()

	var all []models.Transaction
	for offset := 0; ; {
		if err := attemptCtx.Err(); err != nil {
			return nil, err
		}

		page, err := sess.TransactionPage(sec.Market, sec.Code, date, offset, f.cfg.BatchSize)
		if err != nil {
			return nil, &ErrConnect{Server: srv, Err: err}
		}

		switch page.Kind {
		case session.PageTransient:
			return nil, &ErrProtocol{Offset: offset}
		case session.PageEnd:
			return all, nil
		case session.PageRecords:
			all = append(all, page.Records...)
			if len(page.Records) < f.cfg.BatchSize {
				return all, nil
			}
			offset += f.cfg.BatchSize
		}
	}
}

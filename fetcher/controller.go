// Package fetcher implements the resilient bulk download engine: a
// bounded worker pool driven through successive retry rounds with
// decreasing concurrency, per-attempt server failover, idempotent
// resume and a final download report.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/samber/lo"
)

// AttemptFunc executes one fetch attempt for one target and returns
// its immutable outcome. Implementations must isolate their own
// failures; the outcome is the only channel back to the engine.
type AttemptFunc func(ctx context.Context, sec models.Security) models.Outcome

// ProgressFunc is invoked once per completed target. It is
// fire-and-forget: panics are swallowed and never reach the scheduler.
type ProgressFunc func(completed, total int)

// Controller drives the round state machine over a target set.
type Controller struct {
	MaxWorkers      int
	FloorWorkers    int
	MaxRetry        int
	RetryPause      time.Duration
	NoDataSkipRatio float64

	Progress ProgressFunc
	Metrics  *Metrics
}

// Result aggregates the terminal state of all rounds. The failure list
// holds both hard failures and no-data targets, so that
// Success + len(Failures) always equals the universe size.
type Result struct {
	Success  int
	Failures []models.Failure
	Rounds   int
	Retries  int
}

type roundResult struct {
	success int
	noData  []models.Failure
	faults  []models.Failure
}

// Run executes round 0 over all targets and up to MaxRetry further
// rounds over the shrinking failed subset. Concurrency halves between
// rounds down to FloorWorkers, and a fixed pause precedes every retry
// round. The pause and every attempt observe ctx cancellation.
func (c *Controller) Run(ctx context.Context, targets []models.Security, attempt AttemptFunc) Result {
	byCode := lo.KeyBy(targets, func(sec models.Security) string { return sec.Code })

	res := Result{}
	var noData []models.Failure
	pending := targets
	workers := c.MaxWorkers

	for round := 0; ; round++ {
		name := roundName(round)
		slog.Info("starting round",
			slog.String("round", name),
			slog.Int("targets", len(pending)),
			slog.Int("workers", workers),
		)

		rr := c.runRound(ctx, pending, workers, name, attempt)
		res.Success += rr.success
		res.Rounds++
		noData = append(noData, rr.noData...)

		if round == 0 {
			c.diagnoseFirstRound(rr)
			if len(targets) > 0 && float64(len(rr.noData)) >= c.NoDataSkipRatio*float64(len(targets)) {
				slog.Warn("almost no target has data for this date; skipping retries",
					slog.Int("no_data", len(rr.noData)),
					slog.Int("total", len(targets)),
				)
				res.Failures = append(noData, rr.faults...)
				return res
			}
		}

		if len(rr.faults) == 0 || round >= c.MaxRetry || ctx.Err() != nil {
			res.Failures = append(noData, rr.faults...)
			return res
		}

		// The retry round input is exactly the failed subset of this round.
		pending = lo.FilterMap(rr.faults, func(fail models.Failure, _ int) (models.Security, bool) {
			sec, ok := byCode[fail.Code]
			return sec, ok
		})
		res.Retries += len(pending)
		c.Metrics.AddRetries(len(pending))

		workers = nextWorkers(workers, c.FloorWorkers)

		slog.Info("pausing before retry round",
			slog.Duration("pause", c.RetryPause),
			slog.Int("remaining", len(pending)),
		)
		select {
		case <-ctx.Done():
		case <-time.After(c.RetryPause):
		}
	}
}

// nextWorkers halves the concurrency, clamped to the floor. The level
// never increases across rounds.
func nextWorkers(current, floor int) int {
	next := current / 2
	if next < floor {
		next = floor
	}
	if next > current {
		next = current
	}
	return next
}

func roundName(round int) string {
	if round == 0 {
		return "initial"
	}
	return fmt.Sprintf("retry_%d", round)
}

// runRound schedules one pass over targets with at most workers
// concurrent attempts. Workers return outcomes over a channel; this
// goroutine is the single aggregator owning the counters.
func (c *Controller) runRound(ctx context.Context, targets []models.Security, workers int, name string, attempt AttemptFunc) roundResult {
	if workers > len(targets) {
		workers = len(targets)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan models.Security)
	outcomes := make(chan models.Outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sec := range jobs {
				outcomes <- c.attemptOne(ctx, sec, name, attempt)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sec := range targets {
			jobs <- sec
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var rr roundResult
	completed := 0
	for out := range outcomes {
		switch out.Kind {
		case models.OutcomeSuccess:
			rr.success++
		case models.OutcomeNoData:
			rr.noData = append(rr.noData, models.Failure{Code: out.Code, Reason: out.Reason})
		case models.OutcomeFailed:
			rr.faults = append(rr.faults, models.Failure{Code: out.Code, Reason: out.Reason})
		}
		c.Metrics.IncOutcome(out.Kind.String())

		completed++
		c.notifyProgress(completed, len(targets))
		if completed%100 == 0 {
			slog.Debug("round progress",
				slog.String("round", name),
				slog.Int("completed", completed),
				slog.Int("total", len(targets)),
				slog.Int("success", rr.success),
				slog.Int("failed", len(rr.faults)),
			)
		}
	}

	slog.Info("round finished",
		slog.String("round", name),
		slog.Int("success", rr.success),
		slog.Int("no_data", len(rr.noData)),
		slog.Int("failed", len(rr.faults)),
	)
	return rr
}

// attemptOne runs one attempt, short-circuiting when the run has been
// cancelled so remaining targets drain quickly.
func (c *Controller) attemptOne(ctx context.Context, sec models.Security, round string, attempt AttemptFunc) models.Outcome {
	if err := ctx.Err(); err != nil {
		return models.Outcome{Code: sec.Code, Kind: models.OutcomeFailed, Reason: "run cancelled"}
	}

	c.Metrics.IncAttempt(round)
	start := time.Now()
	out := attempt(ctx, sec)
	c.Metrics.ObserveAttempt(time.Since(start))
	return out
}

func (c *Controller) notifyProgress(completed, total int) {
	if c.Progress == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	c.Progress(completed, total)
}

// diagnoseFirstRound logs the first few failure reasons of round 0,
// which is usually enough to tell a dead server list from an
// unarchived date.
func (c *Controller) diagnoseFirstRound(rr roundResult) {
	if len(rr.faults) == 0 {
		return
	}
	limit := 5
	if len(rr.faults) < limit {
		limit = len(rr.faults)
	}
	slog.Info("first round failure diagnosis", slog.Int("failed", len(rr.faults)))
	for _, fail := range rr.faults[:limit] {
		slog.Info("failure sample", slog.String("code", fail.Code), slog.String("reason", fail.Reason))
	}
}

package fetcher

import (
	"fmt"
	"log/slog"

	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/samber/lo"
)

// inlineFailureLimit is the largest failure list that gets echoed
// directly into the summary; bigger lists live in the report artifact.
const inlineFailureLimit = 10

// Summarize emits the human-readable end-of-run summary with
// percentages. failurePath is the persisted report artifact, empty if
// nothing failed.
func Summarize(r *models.DownloadReport, failurePath string) {
	failedPct := 0.0
	if r.Total > 0 {
		failedPct = float64(len(r.Failures)) / float64(r.Total) * 100
	}

	slog.Info("download finished",
		slog.Int("date", r.Date),
		slog.Int("total", r.Total),
		slog.Int("success", r.Success),
		slog.String("success_pct", percent(r.SuccessRate())),
		slog.Int("failed", len(r.Failures)),
		slog.String("failed_pct", percent(failedPct)),
		slog.Int("rounds", r.Rounds),
		slog.Int("retries", r.Retries),
		slog.Duration("elapsed", r.Duration()),
		slog.String("throughput", throughput(r)),
	)

	if r.ProbeDegraded {
		slog.Warn("run executed without any probed healthy server; failures above are expected")
	}

	if n := len(r.Failures); n > 0 && n <= inlineFailureLimit {
		codes := lo.Map(r.Failures, func(fail models.Failure, _ int) string { return fail.Code })
		slog.Info("failed codes", slog.Any("codes", codes))
	}
	if failurePath != "" {
		slog.Info("failure report written", slog.String("path", failurePath))
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func throughput(r *models.DownloadReport) string {
	secs := r.Duration().Seconds()
	if secs <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f targets/sec", float64(r.Total)/secs)
}

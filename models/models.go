// Package models defines data structures shared by the downloader.
package models

import "time"

// Market codes used by the session protocol.
const (
	MarketShenzhen = 0
	MarketShanghai = 1
	MarketBeijing  = 2
)

// Security is one entry of the target universe: a single listed
// security together with the addressing metadata needed to fetch it.
// Immutable for the duration of a run.
type Security struct {
	Code     string `csv:"stock_code" json:"stock_code"`
	Name     string `csv:"stock_name" json:"stock_name"`
	Exchange string `csv:"exchange" json:"exchange"`
	Market   int    `csv:"market" json:"market"`
}

// Server is one remote endpoint candidate.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Transaction is a single intraday tick record.
type Transaction struct {
	Time      string  `csv:"time" json:"time"`
	Price     float64 `csv:"price" json:"price"`
	Volume    int     `csv:"volume" json:"volume"`
	Direction int     `csv:"direction" json:"direction"`
}

// OutcomeKind tags the terminal result of one target within a round.
type OutcomeKind int

const (
	// OutcomeSuccess means records were fetched (or already on disk).
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNoData means the source legitimately has no records for
	// the target on the run date. Not a fault and never retried.
	OutcomeNoData
	// OutcomeFailed means every server try for the attempt failed.
	// Eligible for the next retry round.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoData:
		return "no_data"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome binds one target to the result of its attempt in one round.
// Workers return Outcomes to the aggregator instead of mutating shared
// counters.
type Outcome struct {
	Code    string
	Kind    OutcomeKind
	Records int
	Reason  string
}

// Failure is one (code, reason) pair of the persisted failure report.
type Failure struct {
	Code   string `csv:"stock_code"`
	Reason string `csv:"reason"`
}

// DownloadReport aggregates the final result of a run. Built once
// after the last retry round and never mutated afterwards.
type DownloadReport struct {
	Date          int
	Total         int
	Success       int
	Failures      []Failure
	Rounds        int
	Retries       int
	ProbeDegraded bool
	StartTime     time.Time
	EndTime       time.Time
}

// Duration returns the wall time of the run.
func (r *DownloadReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate returns the success percentage over the whole universe.
func (r *DownloadReport) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Success) / float64(r.Total) * 100
}

// Quote is one prior-close value fetched by the point-lookup adapter.
type Quote struct {
	Code     string  `csv:"stock_code" json:"stock_code"`
	PreClose float64 `csv:"pre_close" json:"pre_close"`
}

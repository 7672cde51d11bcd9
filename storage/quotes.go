package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/marketreplay/go-tick-fetch/models"
)

// QuoteWriter accumulates prior-close quotes from concurrent workers
// and flushes them as one CSV table at the end of the run.
type QuoteWriter struct {
	mu     sync.Mutex
	quotes []models.Quote
}

// NewQuoteWriter returns an empty writer.
func NewQuoteWriter() *QuoteWriter {
	return &QuoteWriter{}
}

// Add records one fetched quote. Safe for concurrent use.
func (qw *QuoteWriter) Add(q models.Quote) {
	qw.mu.Lock()
	qw.quotes = append(qw.quotes, q)
	qw.mu.Unlock()
}

// Len returns the number of quotes collected so far.
func (qw *QuoteWriter) Len() int {
	qw.mu.Lock()
	defer qw.mu.Unlock()
	return len(qw.quotes)
}

// Flush writes the collected quotes, sorted by code, into the run
// output directory of s.
func (qw *QuoteWriter) Flush(s *Store) (string, error) {
	qw.mu.Lock()
	quotes := make([]models.Quote, len(qw.quotes))
	copy(quotes, qw.quotes)
	qw.mu.Unlock()

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Code < quotes[j].Code })

	path := filepath.Join(s.dir, fmt.Sprintf("stock_pre_close_%d.csv", s.date))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create quote file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"stock_code", "pre_close"}); err != nil {
		f.Close()
		return "", fmt.Errorf("write quote header: %w", err)
	}
	for _, q := range quotes {
		row := []string{q.Code, strconv.FormatFloat(q.PreClose, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			f.Close()
			return "", fmt.Errorf("write quote record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush quote records: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close quote file: %w", err)
	}
	return path, nil
}

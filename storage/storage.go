// Package storage persists fetched data: one tick artifact per
// security, the prior-close table, and the failure report of a run.
package storage

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/marketreplay/go-tick-fetch/models"
)

// Store owns the output directory of one run date.
type Store struct {
	dir         string
	date        int
	compression string
	pg          *PGSink
}

// NewStore prepares the output directory for date under dataDir.
// Compression is "gzip" or "none". The optional Postgres sink receives
// a copy of every tick batch; nil disables it.
func NewStore(dataDir string, date int, compression string, pg *PGSink) (*Store, error) {
	dir := filepath.Join(dataDir, strconv.Itoa(date))
	if err := os.MkdirAll(filepath.Join(dir, "tick"), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return &Store{
		dir:         dir,
		date:        date,
		compression: compression,
		pg:          pg,
	}, nil
}

// Dir returns the run output directory.
func (s *Store) Dir() string {
	return s.dir
}

// TickPath returns the artifact path for one security code.
func (s *Store) TickPath(code string) string {
	name := code + ".csv"
	if s.compression == "gzip" {
		name += ".gz"
	}
	return filepath.Join(s.dir, "tick", name)
}

// HasTicks reports whether a finished artifact already exists for the
// code. Used by the resume guard to skip the target at zero network
// cost.
func (s *Store) HasTicks(code string) bool {
	_, err := os.Stat(s.TickPath(code))
	return err == nil
}

var tickHeader = []string{"time", "price", "volume", "direction", "stock_code", "stock_name", "exchange", "date"}

// WriteTicks persists the accumulated transactions for one security.
// The artifact is written to a temporary file and renamed so a crash
// mid-write never leaves a partial file for the resume guard to trust.
func (s *Store) WriteTicks(ctx context.Context, sec models.Security, recs []models.Transaction) error {
	path := s.TickPath(sec.Code)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create tick file: %w", err)
	}
	defer os.Remove(tmp)

	var out io.Writer = f
	var gz *gzip.Writer
	if s.compression == "gzip" {
		gz = gzip.NewWriter(f)
		out = gz
	}

	w := csv.NewWriter(out)
	if err := w.Write(tickHeader); err != nil {
		f.Close()
		return fmt.Errorf("write tick header: %w", err)
	}
	date := strconv.Itoa(s.date)
	for _, rec := range recs {
		row := []string{
			rec.Time,
			strconv.FormatFloat(rec.Price, 'f', -1, 64),
			strconv.Itoa(rec.Volume),
			strconv.Itoa(rec.Direction),
			sec.Code,
			sec.Name,
			sec.Exchange,
			date,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write tick record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush tick records: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tick file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize tick file: %w", err)
	}

	if s.pg != nil {
		if err := s.pg.InsertTicks(ctx, sec, s.date, recs); err != nil {
			return fmt.Errorf("postgres sink: %w", err)
		}
	}
	return nil
}

// ReadTicks loads one tick artifact back, header excluded.
func (s *Store) ReadTicks(code string) ([]models.Transaction, error) {
	f, err := os.Open(s.TickPath(code))
	if err != nil {
		return nil, fmt.Errorf("open tick file: %w", err)
	}
	defer f.Close()

	var in io.Reader = f
	if s.compression == "gzip" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		in = gz
	}

	rows, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tick file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tick file for %s is empty", code)
	}

	recs := make([]models.Transaction, 0, len(rows)-1)
	for _, row := range rows[1:] {
		price, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", row[1], err)
		}
		volume, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("parse volume %q: %w", row[2], err)
		}
		direction, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("parse direction %q: %w", row[3], err)
		}
		recs = append(recs, models.Transaction{
			Time:      row[0],
			Price:     price,
			Volume:    volume,
			Direction: direction,
		})
	}
	return recs, nil
}

// WriteFailureReport persists the (code, reason) failure list of the
// run under the given file name. Written once per run; an empty list
// writes no file.
func (s *Store) WriteFailureReport(name string, failures []models.Failure) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create failure report: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"stock_code", "reason"}); err != nil {
		f.Close()
		return "", fmt.Errorf("write failure report header: %w", err)
	}
	for _, fail := range failures {
		if err := w.Write([]string{fail.Code, fail.Reason}); err != nil {
			f.Close()
			return "", fmt.Errorf("write failure report record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush failure report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close failure report: %w", err)
	}
	return path, nil
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marketreplay/go-tick-fetch/models"
)

const testDate = 20251216

var testSecurity = models.Security{
	Code:     "000001",
	Name:     "Ping An Bank",
	Exchange: "shenzhen",
	Market:   models.MarketShenzhen,
}

var testTicks = []models.Transaction{
	{Time: "09:30", Price: 10.5, Volume: 200, Direction: 0},
	{Time: "09:31", Price: 10.52, Volume: 120, Direction: 1},
	{Time: "09:32", Price: 10.48, Volume: 300, Direction: 2},
}

func newTestStore(t *testing.T, compression string) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), testDate, compression, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestWriteReadTicks(t *testing.T) {
	for _, compression := range []string{"none", "gzip"} {
		t.Run(compression, func(t *testing.T) {
			store := newTestStore(t, compression)

			if err := store.WriteTicks(context.Background(), testSecurity, testTicks); err != nil {
				t.Fatalf("write ticks: %v", err)
			}

			recs, err := store.ReadTicks(testSecurity.Code)
			if err != nil {
				t.Fatalf("read ticks: %v", err)
			}
			if len(recs) != len(testTicks) {
				t.Fatalf("records = %d, want %d", len(recs), len(testTicks))
			}
			for i, rec := range recs {
				if rec != testTicks[i] {
					t.Errorf("record %d = %+v, want %+v", i, rec, testTicks[i])
				}
			}
		})
	}
}

func TestTickPathCompressionSuffix(t *testing.T) {
	plain := newTestStore(t, "none")
	if got := plain.TickPath("000001"); !strings.HasSuffix(got, filepath.Join("tick", "000001.csv")) {
		t.Fatalf("plain path = %q", got)
	}
	gz := newTestStore(t, "gzip")
	if got := gz.TickPath("000001"); !strings.HasSuffix(got, "000001.csv.gz") {
		t.Fatalf("gzip path = %q", got)
	}
}

func TestHasTicks(t *testing.T) {
	store := newTestStore(t, "none")

	if store.HasTicks(testSecurity.Code) {
		t.Fatalf("HasTicks true before any write")
	}
	if err := store.WriteTicks(context.Background(), testSecurity, testTicks); err != nil {
		t.Fatalf("write ticks: %v", err)
	}
	if !store.HasTicks(testSecurity.Code) {
		t.Fatalf("HasTicks false after write")
	}
}

func TestPartialFileDoesNotSatisfyResumeGuard(t *testing.T) {
	store := newTestStore(t, "none")

	// A leftover temporary file from an interrupted write must not be
	// mistaken for a finished artifact.
	tmp := store.TickPath(testSecurity.Code) + ".tmp"
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write tmp: %v", err)
	}
	if store.HasTicks(testSecurity.Code) {
		t.Fatalf("HasTicks true for a temporary file")
	}
}

func TestWriteTicksLeavesNoTempFile(t *testing.T) {
	store := newTestStore(t, "none")
	if err := store.WriteTicks(context.Background(), testSecurity, testTicks); err != nil {
		t.Fatalf("write ticks: %v", err)
	}
	if _, err := os.Stat(store.TickPath(testSecurity.Code) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestWriteFailureReport(t *testing.T) {
	store := newTestStore(t, "none")
	failures := []models.Failure{
		{Code: "000001", Reason: "connection refused"},
		{Code: "600000", Reason: "no data for date"},
	}

	path, err := store.WriteFailureReport("failed_stocks.csv", failures)
	if err != nil {
		t.Fatalf("write failure report: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failure report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header plus 2 records", len(lines))
	}
	if lines[0] != "stock_code,reason" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "000001,") || !strings.HasPrefix(lines[2], "600000,") {
		t.Fatalf("unexpected records: %v", lines[1:])
	}
}

func TestWriteFailureReportEmpty(t *testing.T) {
	store := newTestStore(t, "none")

	path, err := store.WriteFailureReport("failed_stocks.csv", nil)
	if err != nil {
		t.Fatalf("write failure report: %v", err)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty for empty failure list", path)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "failed_stocks.csv")); !os.IsNotExist(err) {
		t.Fatalf("empty failure list still wrote a file")
	}
}

func TestQuoteWriterFlushSorted(t *testing.T) {
	store := newTestStore(t, "none")
	writer := NewQuoteWriter()
	writer.Add(models.Quote{Code: "600000", PreClose: 8.4})
	writer.Add(models.Quote{Code: "000001", PreClose: 10.52})
	writer.Add(models.Quote{Code: "300750", PreClose: 182.3})

	if writer.Len() != 3 {
		t.Fatalf("len = %d, want 3", writer.Len())
	}

	path, err := writer.Flush(store)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read quote table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"stock_code,pre_close",
		"000001,10.52",
		"300750,182.3",
		"600000,8.4",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d", len(lines), len(want))
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d = %q, want %q", i, line, want[i])
		}
	}
}

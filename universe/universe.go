// Package universe loads the target universe: the full list of
// securities to fetch in one run.
package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/marketreplay/go-tick-fetch/models"
)

// exchangeMarkets maps exchange labels to session market codes.
var exchangeMarkets = map[string]int{
	"shanghai": models.MarketShanghai,
	"sh":       models.MarketShanghai,
	"sse":      models.MarketShanghai,
	"shenzhen": models.MarketShenzhen,
	"sz":       models.MarketShenzhen,
	"szse":     models.MarketShenzhen,
	"beijing":  models.MarketBeijing,
	"bj":       models.MarketBeijing,
	"bse":      models.MarketBeijing,
}

// Load reads the universe CSV at path. Expected columns: stock_code,
// stock_name, exchange and an optional market_type override. Codes are
// zero-padded to six characters. A missing or unreadable file is the
// only fatal startup error of a run.
func Load(path string) ([]models.Security, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open universe file: %w", err)
	}
	defer f.Close()

	secs, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse universe file %q: %w", path, err)
	}
	if len(secs) == 0 {
		return nil, fmt.Errorf("universe file %q holds no securities", path)
	}

	counts := make(map[string]int)
	for _, sec := range secs {
		counts[sec.Exchange]++
	}
	slog.Info("universe loaded", slog.Int("securities", len(secs)))
	for exchange, n := range counts {
		slog.Info("universe exchange", slog.String("exchange", exchange), slog.Int("count", n))
	}
	return secs, nil
}

func parse(r io.Reader) ([]models.Security, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	codeIdx, ok := col["stock_code"]
	if !ok {
		return nil, fmt.Errorf("missing stock_code column")
	}
	nameIdx, hasName := col["stock_name"]
	exchangeIdx, hasExchange := col["exchange"]
	marketIdx, hasMarket := col["market_type"]

	var secs []models.Security
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if codeIdx >= len(record) {
			continue
		}
		code := PadCode(record[codeIdx])
		if code == "" {
			continue
		}

		sec := models.Security{Code: code}
		if hasName && nameIdx < len(record) {
			sec.Name = strings.TrimSpace(record[nameIdx])
		}
		if hasExchange && exchangeIdx < len(record) {
			sec.Exchange = strings.TrimSpace(record[exchangeIdx])
		}

		// The explicit market_type override wins over the exchange label.
		if hasMarket && marketIdx < len(record) && strings.TrimSpace(record[marketIdx]) != "" {
			market, err := strconv.Atoi(strings.TrimSpace(record[marketIdx]))
			if err != nil {
				return nil, fmt.Errorf("line %d: market_type: %w", line, err)
			}
			sec.Market = market
		} else {
			market, ok := exchangeMarkets[strings.ToLower(sec.Exchange)]
			if !ok {
				return nil, fmt.Errorf("line %d: unknown exchange %q", line, sec.Exchange)
			}
			sec.Market = market
		}

		secs = append(secs, sec)
	}
	return secs, nil
}

// PadCode normalizes a security code to its six character zero-padded
// form.
func PadCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 6 {
		code = "0" + code
	}
	return code
}

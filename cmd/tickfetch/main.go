package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketreplay/go-tick-fetch/config"
	"github.com/marketreplay/go-tick-fetch/fetcher"
	"github.com/marketreplay/go-tick-fetch/models"
	"github.com/marketreplay/go-tick-fetch/preclose"
	"github.com/marketreplay/go-tick-fetch/session"
	"github.com/marketreplay/go-tick-fetch/storage"
	"github.com/marketreplay/go-tick-fetch/universe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.DefaultConfig()

	workersDefault := cfg.MaxWorkers
	if value, ok, err := config.EnvInt("TICKFETCH_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TICKFETCH_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		workersDefault = value
	}
	dataDirDefault := cfg.DataDir
	if value, ok := config.EnvString("TICKFETCH_DATA_DIR"); ok {
		dataDirDefault = value
	}
	metricsDefault := cfg.MetricsAddr
	if value, ok := config.EnvString("TICKFETCH_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	configFile := flag.String("config", "", "Optional YAML config file")
	mode := flag.String("mode", "ticks", "Run mode: ticks, preclose, or both")
	date := flag.String("date", "", "Trading date, YYYYMMDD (default: today)")
	startDate := flag.String("start", "", "Range start date, YYYYMMDD")
	endDate := flag.String("end", "", "Range end date, YYYYMMDD")
	universeFile := flag.String("universe", "", "Universe CSV path (overrides config)")
	dataDir := flag.String("data-dir", dataDirDefault, "Output data directory")
	workers := flag.Int("workers", workersDefault, "Concurrent download workers")
	maxRetry := flag.Int("max-retry", cfg.MaxRetry, "Retry rounds after the initial round")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			slog.Error("loading config file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	cfg.DataDir = *dataDir
	cfg.MaxWorkers = *workers
	cfg.MaxRetry = *maxRetry
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *universeFile != "" {
		cfg.UniverseFile = *universeFile
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	dates, err := resolveDates(*date, *startDate, *endDate)
	if err != nil {
		slog.Error("invalid date arguments", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight attempts to finish")
	}()

	if err := run(ctx, cfg, *mode, dates); err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string, dates []int) error {
	targets, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return err
	}

	var pg *storage.PGSink
	if cfg.PostgresDSN != "" {
		pg, err = storage.NewPGSink(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		slog.Info("postgres tick sink enabled")
	}

	dialer := session.NewTCPDialer(cfg.DialTimeout, cfg.AttemptTimeout)

	for _, date := range dates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		store, err := storage.NewStore(cfg.DataDir, date, cfg.Compression, pg)
		if err != nil {
			return err
		}

		switch mode {
		case "ticks":
			if err := runTicks(ctx, cfg, dialer, store, date, targets); err != nil {
				return err
			}
		case "preclose":
			if err := runPreclose(ctx, cfg, store, date, targets); err != nil {
				return err
			}
		case "both":
			if err := runTicks(ctx, cfg, dialer, store, date, targets); err != nil {
				return err
			}
			if err := runPreclose(ctx, cfg, store, date, targets); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported mode: %s", mode)
		}
	}
	return nil
}

func runTicks(ctx context.Context, cfg *config.Config, dialer session.Dialer, store *storage.Store, date int, targets []models.Security) error {
	f := fetcher.New(cfg, dialer, store)

	shutdownMetrics, err := serveMetrics(cfg.MetricsAddr, f.Metrics)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	report, err := f.Run(ctx, date, targets)
	if err != nil {
		return err
	}
	printSummary("tick download", report)
	return nil
}

func runPreclose(ctx context.Context, cfg *config.Config, store *storage.Store, date int, targets []models.Security) error {
	client, err := preclose.NewClient(preclose.Config{
		BaseURL:   cfg.QuoteURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.QuoteTimeout,
		RetryMax:  cfg.QuoteRetryMax,
		CacheTTL:  cfg.QuoteCacheTTL,
		CacheSize: cfg.QuoteCacheSize,
	})
	if err != nil {
		return err
	}

	// When tick artifacts exist for the date, quotes are only needed for
	// those securities; otherwise the whole universe is fetched.
	withTicks := make([]models.Security, 0, len(targets))
	for _, sec := range targets {
		if store.HasTicks(sec.Code) {
			withTicks = append(withTicks, sec)
		}
	}
	if len(withTicks) > 0 {
		slog.Info("restricting prior-close fetch to securities with tick data", slog.Int("count", len(withTicks)))
		targets = withTicks
	}

	q := fetcher.NewQuoteFetcher(cfg, client, store)
	report, err := q.Run(ctx, date, targets)
	if err != nil {
		return err
	}
	printSummary("prior-close download", report)
	return nil
}

// resolveDates turns the date flags into an ordered list of run dates.
// Ranges skip weekends.
func resolveDates(date, start, end string) ([]int, error) {
	if (start == "") != (end == "") {
		return nil, fmt.Errorf("-start and -end must be given together")
	}

	if start != "" {
		from, err := time.Parse("20060102", start)
		if err != nil {
			return nil, fmt.Errorf("parse start date: %w", err)
		}
		to, err := time.Parse("20060102", end)
		if err != nil {
			return nil, fmt.Errorf("parse end date: %w", err)
		}
		if to.Before(from) {
			return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
		}

		var dates []int
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			dates = append(dates, dateInt(day))
		}
		if len(dates) == 0 {
			return nil, fmt.Errorf("no trading days between %s and %s", start, end)
		}
		return dates, nil
	}

	if date == "" {
		return []int{dateInt(time.Now())}, nil
	}
	parsed, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	return []int{dateInt(parsed)}, nil
}

func dateInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func serveMetrics(addr string, metrics *fetcher.Metrics) (func(), error) {
	if addr == "" || metrics == nil {
		return func() {}, nil
	}

	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}, nil
}

func printSummary(title string, r *models.DownloadReport) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("%s complete (%d)\n", title, r.Date)
	fmt.Printf("  Total targets: %d\n", r.Total)
	fmt.Printf("  Success:       %d (%.1f%%)\n", r.Success, r.SuccessRate())
	fmt.Printf("  Failed:        %d\n", len(r.Failures))
	fmt.Printf("  Rounds:        %d\n", r.Rounds)
	fmt.Printf("  Retries:       %d\n", r.Retries)
	fmt.Printf("  Duration:      %v\n", r.Duration().Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

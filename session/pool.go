package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketreplay/go-tick-fetch/models"
)

// Pool is an immutable snapshot of the server candidates a run will
// use, in probe order. It is taken once per run and passed into each
// round rather than mutated in place.
type Pool struct {
	Servers []models.Server

	// Degraded is true when no candidate answered the probe and the
	// run fell back to the unfiltered configured list.
	Degraded bool
}

// Probe checks every configured candidate with the minimal count
// request under a short timeout and returns the pool of responders in
// order. An empty result is not fatal: the run proceeds on the full
// configured list with a degraded expected success rate, and that
// condition is surfaced both in logs and in the pool itself.
func Probe(ctx context.Context, dialer Dialer, servers []models.Server, timeout time.Duration) Pool {
	slog.Info("probing servers", slog.Int("candidates", len(servers)))

	var healthy []models.Server
	for _, srv := range servers {
		if err := probeOne(ctx, dialer, srv, timeout); err != nil {
			slog.Warn("server probe failed",
				slog.String("host", srv.Host),
				slog.Int("port", srv.Port),
				slog.Any("error", err),
			)
			continue
		}
		slog.Info("server reachable", slog.String("host", srv.Host), slog.Int("port", srv.Port))
		healthy = append(healthy, srv)
	}

	if len(healthy) == 0 {
		slog.Error("no configured server answered the probe; continuing on the full list, downloads will likely fail")
		return Pool{Servers: servers, Degraded: true}
	}

	slog.Info("server pool ready", slog.Int("healthy", len(healthy)))
	return Pool{Servers: healthy}
}

func probeOne(ctx context.Context, dialer Dialer, srv models.Server, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := dialer.Connect(probeCtx, srv)
	if err != nil {
		return err
	}
	defer sess.Close()

	_, err = sess.Count(models.MarketShenzhen)
	return err
}

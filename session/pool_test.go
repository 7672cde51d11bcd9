package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketreplay/go-tick-fetch/models"
)

// fakeDialer connects only to hosts listed in up; everything else
// fails at dial time.
type fakeDialer struct {
	up map[string]bool
}

func (d *fakeDialer) Connect(_ context.Context, srv models.Server) (Session, error) {
	if !d.up[srv.Host] {
		return nil, errors.New("connection refused")
	}
	return &fakeSession{}, nil
}

type fakeSession struct{}

func (s *fakeSession) Count(int) (int, error) { return 2874, nil }

func (s *fakeSession) TransactionPage(int, string, int, int, int) (Page, error) {
	return Page{Kind: PageEnd}, nil
}

func (s *fakeSession) Close() error { return nil }

func TestProbeFiltersUnreachable(t *testing.T) {
	servers := []models.Server{
		{Host: "a.example.com", Port: 7709},
		{Host: "b.example.com", Port: 7709},
		{Host: "c.example.com", Port: 7709},
	}
	dialer := &fakeDialer{up: map[string]bool{"a.example.com": true, "c.example.com": true}}

	pool := Probe(context.Background(), dialer, servers, time.Second)

	if pool.Degraded {
		t.Fatalf("pool unexpectedly degraded")
	}
	if len(pool.Servers) != 2 {
		t.Fatalf("healthy servers = %d, want 2", len(pool.Servers))
	}
	if pool.Servers[0].Host != "a.example.com" || pool.Servers[1].Host != "c.example.com" {
		t.Fatalf("probe order not preserved: %+v", pool.Servers)
	}
}

func TestProbeDegradedFallback(t *testing.T) {
	servers := []models.Server{
		{Host: "a.example.com", Port: 7709},
		{Host: "b.example.com", Port: 7709},
	}
	dialer := &fakeDialer{up: map[string]bool{}}

	pool := Probe(context.Background(), dialer, servers, time.Second)

	if !pool.Degraded {
		t.Fatalf("expected degraded pool when nothing answers")
	}
	if len(pool.Servers) != len(servers) {
		t.Fatalf("degraded pool kept %d servers, want full list of %d", len(pool.Servers), len(servers))
	}
}

package preclose

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

const testQuoteURL = "https://quotes.example.com/api/qt/stock/get"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:   testQuoteURL,
		UserAgent: "tickfetch-test",
		Timeout:   time.Second,
		RetryMax:  0,
		CacheTTL:  time.Minute,
		CacheSize: 16,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	httpmock.ActivateNonDefault(client.http.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestFetchNumericQuote(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(200, `{"data":{"f60":10.52}}`))

	value, err := client.Fetch(context.Background(), "600000")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value != 10.52 {
		t.Fatalf("quote = %v, want 10.52", value)
	}
}

func TestFetchStringQuote(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(200, `{"data":{"f60":"10.52"}}`))

	value, err := client.Fetch(context.Background(), "000001")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value != 10.52 {
		t.Fatalf("quote = %v, want 10.52", value)
	}
}

func TestFetchPlaceholderQuote(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(200, `{"data":{"f60":"-"}}`))

	_, err := client.Fetch(context.Background(), "000001")
	var invalid *InvalidValueError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidValueError", err)
	}
}

func TestFetchMissingQuoteField(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(200, `{"data":{}}`))

	_, err := client.Fetch(context.Background(), "000001")
	var invalid *InvalidValueError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidValueError", err)
	}
}

func TestFetchServerError(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(503, "upstream unavailable"))

	if _, err := client.Fetch(context.Background(), "000001"); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestFetchUsesCache(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testQuoteURL,
		httpmock.NewStringResponder(200, `{"data":{"f60":10.52}}`))

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), "600000"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	if calls := httpmock.GetTotalCallCount(); calls != 1 {
		t.Fatalf("network calls = %d, want 1 (cache should serve repeats)", calls)
	}
}

func TestSecID(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"600000", "1.600000"},
		{"688001", "1.688001"},
		{"000001", "0.000001"},
		{"300750", "0.300750"},
		{"830799", "0.830799"},
		{"430047", "0.430047"},
	}
	for _, tt := range tests {
		if got := SecID(tt.code); got != tt.want {
			t.Errorf("SecID(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

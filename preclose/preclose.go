// Package preclose implements the point-lookup fetch protocol: a
// single stateless HTTP request per security returning its prior-close
// price.
package preclose

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/marketreplay/go-tick-fetch/models"
)

// quoteField is the designated response field carrying the prior close.
const quoteField = "f60"

// placeholder is the literal "no value" marker the source returns for
// securities without a quote.
const placeholder = "-"

// Config holds the point-lookup client settings.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	RetryMax  int
	CacheTTL  time.Duration
	CacheSize int
}

// Client fetches prior-close quotes. Transport-level retries are
// delegated to the retrying HTTP client; round-level retry of failed
// targets belongs to the fetch controller.
type Client struct {
	http      *retryablehttp.Client
	cache     *expirable.LRU[string, float64]
	baseURL   string
	userAgent string
}

// NewClient builds a quote client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.RetryMax
	hc.HTTPClient.Timeout = cfg.Timeout
	hc.Logger = nil

	var cache *expirable.LRU[string, float64]
	if cfg.CacheSize > 0 {
		cache = expirable.NewLRU[string, float64](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	return &Client{
		http:      hc,
		cache:     cache,
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
	}, nil
}

// SecID maps a security code into its addressing namespace by the
// leading digit: 6xxxxx quotes live in namespace 1 (Shanghai), all
// others in namespace 0. The table is fixed, not configuration.
func SecID(code string) string {
	switch {
	case strings.HasPrefix(code, "6"):
		return "1." + code
	case strings.HasPrefix(code, "0"), strings.HasPrefix(code, "3"):
		return "0." + code
	case strings.HasPrefix(code, "8"), strings.HasPrefix(code, "4"):
		return "0." + code
	default:
		return "0." + code
	}
}

type quoteResponse struct {
	Data map[string]json.RawMessage `json:"data"`
}

// Fetch returns the prior-close price for one security code. A
// placeholder or absent value is a validation failure, not a quote of
// zero.
func (c *Client) Fetch(ctx context.Context, code string) (float64, error) {
	if c.cache != nil {
		if value, ok := c.cache.Get(code); ok {
			return value, nil
		}
	}

	query := url.Values{}
	query.Set("secid", SecID(code))
	query.Set("fields", quoteField)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote request: unexpected status %d", resp.StatusCode)
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode quote response: %w", err)
	}

	value, err := parseQuote(decoded.Data[quoteField])
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		c.cache.Add(code, value)
	}
	return value, nil
}

// InvalidValueError marks a malformed or placeholder payload from the
// quote source. The controller retries these at round level.
type InvalidValueError struct {
	Detail string
}

func (e *InvalidValueError) Error() string {
	return "invalid value: " + e.Detail
}

func parseQuote(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, &InvalidValueError{Detail: "quote field missing"}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == placeholder {
			return 0, &InvalidValueError{Detail: "placeholder quote"}
		}
		value, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return 0, &InvalidValueError{Detail: fmt.Sprintf("%q", asString)}
		}
		return value, nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, &InvalidValueError{Detail: string(raw)}
	}
	return asNumber, nil
}

// Quote binds a fetched value to its security code.
func (c *Client) Quote(ctx context.Context, sec models.Security) (models.Quote, error) {
	value, err := c.Fetch(ctx, sec.Code)
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Code: sec.Code, PreClose: value}, nil
}

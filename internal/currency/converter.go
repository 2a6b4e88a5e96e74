package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.frankfurter.app"
	defaultHTTPTimeout = 10 * time.Second
	defaultAttempts    = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Converter turns foreign-currency amounts into USD equivalents using the
// Frankfurter exchange-rate API. Rates are date-aware; dates in the future
// fall back to the latest published rate.
type Converter struct {
	baseURL    string
	httpClient *http.Client

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
	now         func() time.Time
}

// Option customizes the converter.
type Option func(*Converter)

// WithBaseURL overrides the rate service endpoint (useful for tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Converter) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Converter) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides the attempt cap and backoff delays.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Converter) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Converter) {
		c.sleeper = sleeper
	}
}

// WithTimeSource overrides the clock used for future-date detection.
func WithTimeSource(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// NewConverter creates a converter with the default Frankfurter endpoint.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		maxAttempts: defaultAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleeper:     time.Sleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertToUSD converts an amount to its USD equivalent as of the given
// date (nil means latest). It returns nil with no error when the
// currency/date pair is unsupported by the rate service; callers must treat
// that as "leave the USD amount unset", never as fatal. A genuine network
// or server fault after exhausting retries is returned as an error.
func (c *Converter) ConvertToUSD(ctx context.Context, amount float64, currency string, asOf *time.Time) (*float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return &amount, nil
	}
	if amount == 0 {
		zero := 0.0
		return &zero, nil
	}

	rate, err := c.exchangeRate(ctx, currency, asOf)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, nil
	}
	converted := amount * *rate
	return &converted, nil
}

// ratesResponse is the subset of the Frankfurter payload we read.
type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// exchangeRate fetches the currency→USD rate for a date, retrying transient
// failures with exponential backoff. A nil rate with no error means the
// currency or date is not supported by the service.
func (c *Converter) exchangeRate(ctx context.Context, currency string, asOf *time.Time) (*float64, error) {
	datePath := "latest"
	if asOf != nil && !asOf.After(c.now()) {
		datePath = asOf.Format("2006-01-02")
	}

	query := url.Values{}
	query.Set("from", currency)
	query.Set("to", "USD")
	rateURL := fmt.Sprintf("%s/%s?%s", c.baseURL, datePath, query.Encode())

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		rate, retryable, err := c.fetchRateOnce(ctx, rateURL)
		if err == nil {
			return rate, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		delay := c.backoffDelay(attempt)
		slog.Warn("Retrying exchange rate lookup", "currency", currency, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetching exchange rate for %s: failed after %d attempts: %w", currency, c.maxAttempts, lastErr)
}

// fetchRateOnce performs a single rate lookup. It reports whether a failure
// is worth retrying; 4xx responses other than 404 are not.
func (c *Converter) fetchRateOnce(ctx context.Context, rateURL string) (rate *float64, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rateURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("calling rate service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unsupported currency or date; unresolved, not a fault.
		return nil, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("rate service error (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("rate service error (status %d)", resp.StatusCode)
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decoding rate response: %w", err)
	}
	usd, ok := payload.Rates["USD"]
	if !ok {
		return nil, false, nil
	}
	return &usd, false, nil
}

func (c *Converter) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func (c *Converter) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

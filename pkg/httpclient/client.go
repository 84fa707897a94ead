// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpclient is the single process-wide HTTP door the pipeline
// walks through: every outbound request is rate-limited per host, wrapped
// in a circuit breaker, and retried with backoff before it ever reaches a
// caller as a failure.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kraklabs/achesucatas/pkg/resilience"
)

// ErrorClass buckets the reason FetchOutcome did not return a body, so
// callers can distinguish retryable infrastructure noise from permanent
// rejections without inspecting error strings.
type ErrorClass string

const (
	ErrClassNone        ErrorClass = ""
	ErrClassTimeout     ErrorClass = "timeout"
	ErrClassDNS         ErrorClass = "dns"
	ErrClassConnRefused ErrorClass = "conn_refused"
	ErrClassHTTPStatus  ErrorClass = "http_status"
	ErrClassBreakerOpen ErrorClass = "breaker_open"
	ErrClassCanceled    ErrorClass = "canceled"
	ErrClassOther       ErrorClass = "other"
)

// FetchOutcome is the result of a single Fetch/Post call. Ordinary HTTP
// failures (4xx/5xx, timeouts, refused connections) are reported here
// rather than as a Go error, so a caller's error path is reserved for
// programmer mistakes (bad URL, nil context).
type FetchOutcome struct {
	OK         bool
	Status     int
	Body       []byte
	Header     http.Header
	ErrorClass ErrorClass
	Err        error
}

// Config tunes the client's politeness and resilience knobs.
type Config struct {
	Timeout           time.Duration
	PerHostInterval   time.Duration // minimum spacing between requests to one host
	PerHostBurst      int
	RetryPolicy       resilience.Policy
	BreakerThreshold  uint32
	BreakerResetAfter time.Duration
	UserAgent         string
}

// DefaultConfig matches the upstream miner's default politeness settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		PerHostInterval:   600 * time.Millisecond,
		PerHostBurst:      1,
		RetryPolicy:       resilience.DefaultPolicy(),
		BreakerThreshold:  8,
		BreakerResetAfter: 60 * time.Second,
		UserAgent:         "AcheSucatas-Miner/1.0 (+https://kraklabs.com)",
	}
}

// Client is safe for concurrent use by many goroutines.
type Client struct {
	cfg      Config
	http     *http.Client
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Client sharing one *http.Transport across all requests.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		breakers: resilience.NewHostBreakers(cfg.BreakerThreshold, cfg.BreakerResetAfter),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		interval := c.cfg.PerHostInterval
		if interval <= 0 {
			interval = 600 * time.Millisecond
		}
		burst := c.cfg.PerHostBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Every(interval), burst)
		c.limiters[host] = l
	}
	return l
}

// Get performs a rate-limited, breaker-guarded, retried GET.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) FetchOutcome {
	return c.do(ctx, http.MethodGet, rawURL, nil, headers)
}

// PostJSON performs a rate-limited, breaker-guarded, retried POST with a
// JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body []byte, headers map[string]string) FetchOutcome {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, http.MethodPost, rawURL, body, h)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) FetchOutcome {
	u, err := url.Parse(rawURL)
	if err != nil {
		return FetchOutcome{ErrorClass: ErrClassOther, Err: fmt.Errorf("invalid url %q: %w", rawURL, err)}
	}
	host := u.Host

	limiter := c.limiterFor(host)
	if err := limiter.Wait(ctx); err != nil {
		return FetchOutcome{ErrorClass: ErrClassCanceled, Err: err}
	}

	var outcome FetchOutcome
	breakerResult, breakerErr := c.breakers.Execute(host, func() (any, error) {
		var attemptErr error
		retryErr := resilience.Retry(ctx, c.cfg.RetryPolicy, func(ctx context.Context) error {
			o, err := c.attempt(ctx, method, rawURL, body, headers)
			outcome = o
			attemptErr = err
			if err != nil {
				return err
			}
			if o.Status >= 500 {
				return fmt.Errorf("server error %d from %s", o.Status, host)
			}
			return nil
		})
		if retryErr != nil {
			if attemptErr != nil {
				return nil, attemptErr
			}
			return nil, retryErr
		}
		return nil, nil
	})

	if breakerErr != nil {
		if breakerErr == gobreakerErrOpen() {
			return FetchOutcome{ErrorClass: ErrClassBreakerOpen, Err: breakerErr}
		}
		if outcome.ErrorClass == "" {
			outcome.ErrorClass = ErrClassOther
			outcome.Err = breakerErr
		}
		return outcome
	}
	_ = breakerResult
	outcome.OK = outcome.Status > 0 && outcome.Status < 500
	return outcome
}

func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (FetchOutcome, error) {
	var reader io.Reader
	if body != nil {
		reader = newByteReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return FetchOutcome{ErrorClass: ErrClassOther, Err: err}, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		class := classifyNetErr(ctx, err)
		out := FetchOutcome{ErrorClass: class, Err: err}
		if class == ErrClassCanceled {
			return out, resilience.NonRetryable(err)
		}
		return out, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchOutcome{ErrorClass: ErrClassOther, Err: err, Status: resp.StatusCode}, err
	}

	out := FetchOutcome{
		OK:     resp.StatusCode < 400,
		Status: resp.StatusCode,
		Body:   data,
		Header: resp.Header,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		out.ErrorClass = ErrClassHTTPStatus
		return out, fmt.Errorf("rate limited %d from %s", resp.StatusCode, req.Host)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		out.ErrorClass = ErrClassHTTPStatus
		return out, resilience.NonRetryable(fmt.Errorf("client error %d", resp.StatusCode))
	}
	return out, nil
}

func classifyNetErr(ctx context.Context, err error) ErrorClass {
	if ctx.Err() != nil {
		return ErrClassCanceled
	}
	var netErr interface{ Timeout() bool }
	if asTimeout(err, &netErr) && netErr.Timeout() {
		return ErrClassTimeout
	}
	return ErrClassOther
}

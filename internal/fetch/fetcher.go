// Package fetch implements the Fetcher: an HTTP client with per-host
// rate limiting, retry/backoff, optional proxy and headless fallback,
// and optional content-addressed raw-snapshot persistence (§4.2).
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/cache"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// Response is the result of a successful fetch.
type Response struct {
	Status     int
	FinalURL   string
	Body       []byte
	SnapshotURL string
}

// Options tunes a single Fetch call.
type Options struct {
	Headers       map[string]string
	MaxRetries    int
	RetryBackoff  time.Duration
	BackoffFactor float64
	Deadline      time.Duration
	Headless      bool // force headless fallback regardless of challenge detection
}

// DefaultOptions mirrors the spec's default politeness/retry budget.
func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		RetryBackoff:  time.Second,
		BackoffFactor: 2.0,
		Deadline:      30 * time.Second,
	}
}

// HeadlessFetcher is the optional pluggable JS-rendering fallback
// (§1 Non-goals: "no general-purpose browser"; rendered-JS fallback is
// an optional pluggable capability).
type HeadlessFetcher interface {
	FetchRendered(ctx context.Context, targetURL string) (*Response, error)
}

// SnapshotWriter persists a fetched body to the blob store under a
// content-addressed path and returns its retrievable URL (§4.2).
type SnapshotWriter interface {
	Write(ctx context.Context, body []byte, meta SnapshotMeta) (string, error)
}

// SnapshotMeta is the sidecar recorded next to a raw snapshot.
type SnapshotMeta struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url"`
	FetchedAt time.Time `json:"fetched_at"`
	Status    int       `json:"status"`
}

// Fetcher performs rate-limited, retried HTTP fetches.
type Fetcher struct {
	client          *http.Client
	redis           *cache.RedisService
	snapshots       SnapshotWriter
	headless        HeadlessFetcher
	userAgent       string
	perHostRPS      float64
	perHostBurst    int
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
}

// New builds a Fetcher. redis backs the cluster-wide rate-limit budget
// layered on top of the in-process limiter; snapshots/headless are
// optional and may be nil.
func New(client *http.Client, redis *cache.RedisService, snapshots SnapshotWriter, headless HeadlessFetcher, userAgent string, perHostRPS float64) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:       client,
		redis:        redis,
		snapshots:    snapshots,
		headless:     headless,
		userAgent:    userAgent,
		perHostRPS:   perHostRPS,
		perHostBurst: 1,
		limiters:     make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.perHostRPS), f.perHostBurst)
		f.limiters[host] = l
	}
	return l
}

// Fetch performs a rate-limited GET with retry/backoff, honoring
// Retry-After, and optionally persists a content-addressed snapshot.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts Options) (*Response, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"component": "fetch.Fetcher",
		"url":       targetURL,
	})

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, apperr.Parse("fetch.Fetch", "invalid url", err)
	}

	if opts.MaxRetries == 0 {
		opts = mergeDefaults(opts)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	if err := f.limiterFor(parsed.Host).Wait(deadlineCtx); err != nil {
		return nil, apperr.Deadline("fetch.Fetch", "rate limiter wait exceeded deadline", err)
	}

	if f.redis != nil {
		allowed, err := f.redis.AllowRequest("fetch:"+parsed.Host, int64(f.perHostRPS*60), time.Minute)
		if err == nil && !allowed {
			return nil, apperr.Transient("fetch.Fetch", "cluster-wide rate limit exceeded", nil)
		}
	}

	var lastErr error
	backoff := opts.RetryBackoff

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-deadlineCtx.Done():
				return nil, apperr.Deadline("fetch.Fetch", "deadline exceeded during retry backoff", deadlineCtx.Err())
			}
			backoff = time.Duration(float64(backoff) * opts.BackoffFactor)
		}

		resp, retryAfter, err := f.attempt(deadlineCtx, targetURL, opts)
		if err == nil {
			logger.WithField("attempt", attempt).Debug("fetch succeeded")
			return f.finalize(deadlineCtx, resp)
		}

		lastErr = err
		if !apperr.IsRetryable(err) {
			return nil, err
		}
		if retryAfter > 0 {
			backoff = retryAfter
		}
		logger.WithField("attempt", attempt).WithField("error", err.Error()).Warn("fetch attempt failed, retrying")
	}

	if opts.Headless && f.headless != nil {
		resp, err := f.headless.FetchRendered(deadlineCtx, targetURL)
		if err == nil {
			return f.finalize(deadlineCtx, resp)
		}
		lastErr = err
	}

	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, targetURL string, opts Options) (*Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, 0, apperr.Permanent("fetch.attempt", "failed to build request", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isConnectError(err) {
			return nil, 0, apperr.Transient("fetch.attempt", "connect error", err)
		}
		return nil, 0, apperr.Permanent("fetch.attempt", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, apperr.Transient("fetch.attempt", "failed reading body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, retryAfterDuration(resp), apperr.Transient("fetch.attempt", fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, 0, apperr.Permanent("fetch.attempt", fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusForbidden:
		return nil, 0, apperr.Permanent("fetch.attempt", "forbidden (possible challenge)", nil)
	case resp.StatusCode >= 400:
		return nil, 0, apperr.Permanent("fetch.attempt", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	return &Response{
		Status:   resp.StatusCode,
		FinalURL: resp.Request.URL.String(),
		Body:     body,
	}, 0, nil
}

func (f *Fetcher) finalize(ctx context.Context, resp *Response) (*Response, error) {
	if f.snapshots == nil {
		return resp, nil
	}
	snapURL, err := f.snapshots.Write(ctx, resp.Body, SnapshotMeta{
		URL:       resp.FinalURL,
		FinalURL:  resp.FinalURL,
		FetchedAt: time.Now().UTC(),
		Status:    resp.Status,
	})
	if err != nil {
		telemetry.GetContextualLogger(ctx).WithField("error", err.Error()).Warn("failed to persist snapshot, continuing without one")
		return resp, nil
	}
	resp.SnapshotURL = snapURL
	return resp, nil
}

func mergeDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.MaxRetries == 0 {
		opts.MaxRetries = d.MaxRetries
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = d.RetryBackoff
	}
	if opts.BackoffFactor == 0 {
		opts.BackoffFactor = d.BackoffFactor
	}
	if opts.Deadline == 0 {
		opts.Deadline = d.Deadline
	}
	return opts
}

func retryAfterDuration(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func isConnectError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ContentHash computes the content-addressed sha256 digest used for
// blob-store paths and snapshot data hashes.
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON marshals v with sorted keys via the standard library's
// stable map-key ordering, so repeated calls over equal values hash
// identically across process restarts (§4.6 data_hash determinism).
func CanonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

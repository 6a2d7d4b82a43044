package rate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitError is returned when the guard refuses to send a request.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Guard meters requests against a Declaration and pauses after the gateway
// throttles. The gateway sends no quota headers, so budgets are counted locally
// over sliding windows.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu sync.Mutex
	// sent holds send times per budget, oldest first.
	sent        [][]time.Time
	pausedUntil time.Time
	strikes     int
	replay      map[string]replayEntry
}

type replayEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

func NewGuard(decl Declaration) *Guard {
	return &Guard{
		decl:   decl,
		now:    time.Now,
		sent:   make([][]time.Time, len(decl.budgets)),
		replay: make(map[string]replayEntry),
	}
}

// Reserve claims a slot in every budget or returns a RateLimitError naming the
// first budget without room.
func (g *Guard) Reserve() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.pausedUntil) {
		return g.refuse("throttled", g.pausedUntil)
	}
	for i, budget := range g.decl.budgets {
		if budget.Requests <= 0 {
			return g.refuse("disabled", time.Time{})
		}
		window := budget.Per.Duration()
		g.sent[i] = dropBefore(g.sent[i], now.Add(-window))
		if n := len(g.sent[i]); n >= budget.Requests {
			return g.refuse(budget.Per.String()+" budget", g.sent[i][n-budget.Requests].Add(window))
		}
	}
	for i, budget := range g.decl.budgets {
		g.sent[i] = append(g.sent[i], now)
		budgetUsed.WithLabelValues(g.decl.provider, budget.Per.String()).Set(float64(len(g.sent[i])))
	}
	return nil
}

// Observe applies a gateway response. A 429, or a 503 carrying Retry-After,
// pauses every request until the hint passes; without a hint the pause doubles
// per consecutive throttle up to the declared maximum. Any 2xx resets the doubling.
func (g *Guard) Observe(status int, header http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	wait, hinted := retryAfter(header.Get("Retry-After"), now)
	throttled := status == http.StatusTooManyRequests || (status == http.StatusServiceUnavailable && hinted)
	if !throttled {
		if status >= 200 && status < 300 {
			g.strikes = 0
		}
		return
	}

	g.strikes++
	if !hinted {
		wait = g.backoff()
	}
	if until := now.Add(wait); until.After(g.pausedUntil) {
		g.pausedUntil = until
	}
	throttledCounter.WithLabelValues(g.decl.provider).Inc()
	pausedUntilGauge.WithLabelValues(g.decl.provider).Set(float64(g.pausedUntil.Unix()))
}

// backoff must be called with mu held.
func (g *Guard) backoff() time.Duration {
	wait, limit := g.decl.backoff, g.decl.maxBackoff
	if wait <= 0 {
		wait = DefaultBackoff
	}
	if limit <= 0 {
		limit = DefaultMaxBackoff
	}
	for i := 1; i < g.strikes && wait < limit; i++ {
		wait *= 2
	}
	if wait > limit {
		return limit
	}
	return wait
}

func (g *Guard) refuse(reason string, retryAt time.Time) error {
	return RateLimitError{Provider: g.decl.provider, Reason: reason, RetryAt: retryAt}
}

func (g *Guard) replayed(key string, req *http.Request) *http.Response {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.replay[key]
	if !ok || !g.now().Before(entry.expires) {
		return nil
	}
	return &http.Response{
		StatusCode:    entry.status,
		Status:        fmt.Sprintf("%d %s", entry.status, http.StatusText(entry.status)),
		Header:        entry.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(entry.body)),
		ContentLength: int64(len(entry.body)),
		Request:       req,
	}
}

// remember buffers a 2xx body for replay and hands back an equivalent response.
func (g *Guard) remember(key string, resp *http.Response) (*http.Response, error) {
	ttl := g.decl.replayTTL
	if ttl <= 0 || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	g.mu.Lock()
	now := g.now()
	for k, entry := range g.replay {
		if !now.Before(entry.expires) {
			delete(g.replay, k)
		}
	}
	g.replay[key] = replayEntry{status: resp.StatusCode, header: resp.Header.Clone(), body: data, expires: now.Add(ttl)}
	g.mu.Unlock()
	return resp, nil
}

// WrapHTTP returns a copy of base whose requests pass through a guard for decl.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client.Transport = &roundTripper{next: next, guard: NewGuard(decl)}
	return &client
}

type roundTripper struct {
	next  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	provider := rt.guard.decl.provider
	req, body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	key := replayKey(req, body)

	if err := rt.guard.Reserve(); err != nil {
		if resp := rt.guard.replayed(key, req); resp != nil {
			replayedCounter.WithLabelValues(provider).Inc()
			return resp, nil
		}
		var limited RateLimitError
		if errors.As(err, &limited) {
			refusedCounter.WithLabelValues(provider, limited.Reason).Inc()
		}
		return nil, err
	}

	sentCounter.WithLabelValues(provider).Inc()
	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	rt.guard.Observe(resp.StatusCode, resp.Header)
	return rt.guard.remember(key, resp)
}

// bufferBody reads the request body once and returns a clone that can replay it.
func bufferBody(req *http.Request) (*http.Request, []byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, nil, err
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, data, nil
}

func replayKey(req *http.Request, body []byte) string {
	sum := sha256.Sum256(body)
	return req.Method + " " + req.URL.String() + " " + hex.EncodeToString(sum[:])
}

// dropBefore trims send times at or before cutoff from a sorted log.
func dropBefore(log []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(log), func(i int) bool { return log[i].After(cutoff) })
	return log[i:]
}

// retryAfter parses delta-seconds or an HTTP date. The bool reports whether a
// usable hint was present.
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if wait := at.Sub(now); wait > 0 {
		return wait, true
	}
	return 0, true
}

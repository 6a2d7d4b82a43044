package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func guardAt(c *clock, decl Declaration) *Guard {
	g := NewGuard(decl)
	g.now = c.now
	return g
}

func limited(t *testing.T, err error) RateLimitError {
	t.Helper()
	var out RateLimitError
	require.True(t, errors.As(err, &out), "expected RateLimitError, got %v", err)
	return out
}

func TestReserveWithoutBudgetsAlwaysAllows(t *testing.T) {
	g := NewGuard(Declaration{})
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Reserve())
	}
}

func TestReserveSlidingWindow(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(2, Minute))

	require.NoError(t, g.Reserve())
	c.advance(20 * time.Second)
	require.NoError(t, g.Reserve())

	refused := limited(t, g.Reserve())
	assert.Equal(t, "minute budget", refused.Reason)
	assert.Equal(t, c.t.Add(40*time.Second), refused.RetryAt)

	c.advance(39 * time.Second)
	require.Error(t, g.Reserve())
	c.advance(time.Second)
	require.NoError(t, g.Reserve())
}

func TestReserveChecksEveryBudget(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(10, Minute).Allow(3, Day))
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Reserve())
		c.advance(time.Minute)
	}
	refused := limited(t, g.Reserve())
	assert.Equal(t, "day budget", refused.Reason)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), refused.RetryAt)
}

func TestRefusedReserveDoesNotSpendOtherBudgets(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(5, Minute).Allow(1, Day))
	require.NoError(t, g.Reserve())
	for i := 0; i < 10; i++ {
		require.Error(t, g.Reserve())
	}
	assert.Len(t, g.sent[0], 1)
}

func TestObserveTooManyRequestsBacksOffExponentially(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(100, Minute).Backoff(time.Minute, 3*time.Minute))

	waits := []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute, 3 * time.Minute}
	for _, wait := range waits {
		g.Observe(http.StatusTooManyRequests, http.Header{})
		refused := limited(t, g.Reserve())
		assert.Equal(t, "throttled", refused.Reason)
		assert.Equal(t, c.t.Add(wait), refused.RetryAt)
		c.advance(wait)
	}

	require.NoError(t, g.Reserve())
	g.Observe(http.StatusOK, http.Header{})
	g.Observe(http.StatusTooManyRequests, http.Header{})
	assert.Equal(t, c.t.Add(time.Minute), limited(t, g.Reserve()).RetryAt)
}

func TestObserveHonoursRetryAfter(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(100, Minute))

	header := http.Header{}
	header.Set("Retry-After", " 120 ")
	g.Observe(http.StatusServiceUnavailable, header)
	assert.Equal(t, c.t.Add(2*time.Minute), limited(t, g.Reserve()).RetryAt)

	c.advance(2 * time.Minute)
	header.Set("Retry-After", c.t.Add(90*time.Second).Format(http.TimeFormat))
	g.Observe(http.StatusTooManyRequests, header)
	assert.Equal(t, c.t.Add(90*time.Second), limited(t, g.Reserve()).RetryAt)
}

func TestObserveIgnoresPlainServerErrors(t *testing.T) {
	c := newClock()
	g := guardAt(c, Provider("test").Allow(100, Minute))
	g.Observe(http.StatusServiceUnavailable, http.Header{})
	g.Observe(http.StatusInternalServerError, http.Header{})
	require.NoError(t, g.Reserve())
}

func TestRetryAfter(t *testing.T) {
	now := newClock().t
	cases := []struct {
		value  string
		wait   time.Duration
		hinted bool
	}{
		{"", 0, false},
		{"30", 30 * time.Second, true},
		{"-5", 0, false},
		{"soon", 0, false},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
	}
	for _, tc := range cases {
		wait, hinted := retryAfter(tc.value, now)
		assert.Equal(t, tc.wait, wait, tc.value)
		assert.Equal(t, tc.hinted, hinted, tc.value)
	}
}

func TestWrapHTTPReplaysRememberedResponseWhenRefused(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	decl := Provider("test").Allow(1, Day).ReplayFor(time.Minute)
	client := WrapHTTP(decl, server.Client())

	post := func(body string) (string, error) {
		resp, err := client.Post(server.URL, "application/json", strings.NewReader(body))
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		return string(data), err
	}

	first, err := post(`{"ps_id":"1"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"ps_id":"1"}`, first)

	again, err := post(`{"ps_id":"1"}`)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), hits.Load())

	_, err = post(`{"ps_id":"2"}`)
	refused := limited(t, err)
	assert.Equal(t, "test", refused.Provider)
	assert.Equal(t, "day budget", refused.Reason)
}

func TestWrapHTTPPausesAfterThrottle(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := WrapHTTP(Provider("test").Allow(100, Minute), server.Client())
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	_, err = client.Get(server.URL)
	assert.Equal(t, "throttled", limited(t, err).Reason)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRateLimitErrorMessage(t *testing.T) {
	err := RateLimitError{Provider: "isolarcloud", Reason: "throttled"}
	assert.Equal(t, "isolarcloud rate limited: throttled", err.Error())
}

package rate

import "time"

// Window is the period a request budget is counted over.
type Window int

const (
	Minute Window = iota
	Hour
	Day
)

func (w Window) Duration() time.Duration {
	switch w {
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

// Budget caps the requests sent inside any sliding Window.
type Budget struct {
	Requests int
	Per      Window
}

const (
	// DefaultBackoff is the first cooldown after a throttle that carries no Retry-After.
	DefaultBackoff = time.Minute
	// DefaultMaxBackoff caps the doubling cooldown of repeated throttles.
	DefaultMaxBackoff = 30 * time.Minute
)

// Declaration is a provider's client-side request policy. The zero value
// disables the guard.
type Declaration struct {
	provider   string
	budgets    []Budget
	replayTTL  time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
}

// Provider starts a declaration for the named provider.
func Provider(name string) Declaration {
	return Declaration{provider: name, backoff: DefaultBackoff, maxBackoff: DefaultMaxBackoff}
}

func (d Declaration) Name() string {
	return d.provider
}

// Allow adds a budget of requests per window. Every budget must have room for a
// request to be sent.
func (d Declaration) Allow(requests int, per Window) Declaration {
	d.budgets = append(append([]Budget(nil), d.budgets...), Budget{Requests: requests, Per: per})
	return d
}

// ReplayFor keeps successful responses for ttl so an identical request refused by
// the guard is answered from memory instead of failing.
func (d Declaration) ReplayFor(ttl time.Duration) Declaration {
	d.replayTTL = ttl
	return d
}

// Backoff sets the first and the maximum cooldown applied after throttles that
// carry no Retry-After.
func (d Declaration) Backoff(initial, max time.Duration) Declaration {
	d.backoff = initial
	d.maxBackoff = max
	return d
}

func (d Declaration) Budgets() []Budget {
	return append([]Budget(nil), d.budgets...)
}

func (d Declaration) ReplayTTL() time.Duration {
	return d.replayTTL
}

// Enabled reports whether the declaration meters anything.
func (d Declaration) Enabled() bool {
	return len(d.budgets) > 0
}

// RateLimited is the compile-time contract for plugins that declare limits.
type RateLimited interface {
	RateLimits() Declaration
}

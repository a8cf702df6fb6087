package query

import "time"

// Policy controls freshness, retention, retries and refetch triggers for a key
type Policy struct {
	// StaleTime is the freshness window after a successful fetch
	StaleTime time.Duration
	// GCTime is how long an entry survives after its last subscriber leaves
	GCTime time.Duration
	// Retry is the number of retries after the first failed attempt.
	// Only retryable (network) errors are retried.
	Retry int
	// RetryDelay is the backoff base; it doubles per attempt
	RetryDelay time.Duration

	RefetchOnMount     bool
	RefetchOnReconnect bool
	RefetchOnFocus     bool
	// RefetchInterval > 0 polls the key while it has subscribers
	RefetchInterval time.Duration
}

const (
	defaultRetry      = 3
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	// minRefetchInterval bounds interval polling; see Scheduler.Every
	minRefetchInterval = time.Second
)

// DefaultPolicy returns the policy used for ordinary collections
func DefaultPolicy() Policy {
	return Policy{
		StaleTime:          DefaultStaleTime,
		GCTime:             DefaultGCTime,
		Retry:              defaultRetry,
		RetryDelay:         defaultRetryDelay,
		RefetchOnMount:     true,
		RefetchOnReconnect: true,
		RefetchOnFocus:     true,
	}
}

// Polling returns a policy with a short freshness window that re-triggers
// every interval while subscribed
func Polling(interval time.Duration) Policy {
	p := DefaultPolicy()
	p.StaleTime = interval / 2
	p.RefetchInterval = interval
	return p
}

func (p Policy) normalized() Policy {
	if p.GCTime <= 0 {
		p.GCTime = DefaultGCTime
	}
	if p.StaleTime < 0 {
		p.StaleTime = 0
	}
	if p.Retry < 0 {
		p.Retry = 0
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = defaultRetryDelay
	}
	return p
}

// Trigger is a background revalidation event
type Trigger int

const (
	// TriggerFocus fires when the app returns to the foreground
	TriggerFocus Trigger = iota
	// TriggerReconnect fires when network connectivity returns
	TriggerReconnect
)

func (t Trigger) String() string {
	switch t {
	case TriggerFocus:
		return "focus"
	case TriggerReconnect:
		return "reconnect"
	}
	return "unknown"
}

func (p Policy) wants(t Trigger) bool {
	switch t {
	case TriggerFocus:
		return p.RefetchOnFocus
	case TriggerReconnect:
		return p.RefetchOnReconnect
	}
	return false
}

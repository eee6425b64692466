package n8n

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Logical endpoint groups for outbound throttling. Every client call is
// billed against exactly one bucket.
const (
	EndpointWriteWorkflow   = "writeWorkflow"
	EndpointDeleteWorkflow  = "deleteWorkflow"
	EndpointReadWorkflow    = "readWorkflow"
	EndpointReadExecution   = "readExecution"
	EndpointCreateExecution = "createExecution"
	EndpointDefault         = "default"
)

// BucketConfig holds token-bucket parameters for one endpoint group.
type BucketConfig struct {
	PerSecond float64 `yaml:"perSecond" json:"perSecond"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// RateLimitPolicy maps endpoint groups to bucket parameters. Groups absent
// from the map fall back to the "default" entry.
type RateLimitPolicy map[string]BucketConfig

// DefaultRateLimits returns the built-in throttling table.
func DefaultRateLimits() RateLimitPolicy {
	return RateLimitPolicy{
		EndpointWriteWorkflow:   {PerSecond: 2, Burst: 5},
		EndpointDeleteWorkflow:  {PerSecond: 1, Burst: 3},
		EndpointReadWorkflow:    {PerSecond: 5, Burst: 10},
		EndpointReadExecution:   {PerSecond: 5, Burst: 10},
		EndpointCreateExecution: {PerSecond: 3, Burst: 8},
		EndpointDefault:         {PerSecond: 2, Burst: 5},
	}
}

// throttler owns one token bucket per endpoint group. Buckets are created
// lazily so a policy can name groups the process never touches.
type throttler struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	policy  RateLimitPolicy
	onWait  func(endpoint string, waited time.Duration)
}

func newThrottler(policy RateLimitPolicy) *throttler {
	if policy == nil {
		policy = DefaultRateLimits()
	}
	if _, ok := policy[EndpointDefault]; !ok {
		policy[EndpointDefault] = BucketConfig{PerSecond: 2, Burst: 5}
	}
	return &throttler{
		buckets: make(map[string]*rate.Limiter),
		policy:  policy,
	}
}

func (t *throttler) bucket(endpoint string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.buckets[endpoint]; ok {
		return l
	}
	cfg, ok := t.policy[endpoint]
	if !ok {
		cfg = t.policy[EndpointDefault]
	}
	l := rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
	t.buckets[endpoint] = l
	return l
}

// wait blocks until the endpoint's bucket grants a token or ctx is done.
// Waits long enough to be observable are reported so operators can see
// self-throttling in the metrics.
func (t *throttler) wait(ctx context.Context, endpoint string) error {
	start := time.Now()
	if err := t.bucket(endpoint).Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond && t.onWait != nil {
		t.onWait(endpoint, waited)
	}
	return nil
}

// Package backoff computes retry delays for transport and validation retries.
package backoff

import (
	"math/rand"
	"sync"
	"time"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
)

const maxShift = 30

// DefaultRateLimitTable is the progressive delay table for 429 responses.
var DefaultRateLimitTable = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// Config configures a Policy.
type Config struct {
	Base           time.Duration
	RateLimitTable []time.Duration
	JitterMin      float64
	JitterMax      float64
	Seed           int64 // 0 seeds from the clock
}

// Policy maps (attempt, failure class) to a jittered delay.
// Safe for concurrent use.
type Policy struct {
	base      time.Duration
	table     []time.Duration
	jitterMin float64
	jitterMax float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy creates a Policy, filling zero values with defaults.
func NewPolicy(cfg Config) *Policy {
	if cfg.Base <= 0 {
		cfg.Base = 2 * time.Second
	}
	if len(cfg.RateLimitTable) == 0 {
		cfg.RateLimitTable = DefaultRateLimitTable
	}
	if cfg.JitterMin <= 0 || cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMin, cfg.JitterMax = 0.8, 1.2
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Policy{
		base:      cfg.Base,
		table:     append([]time.Duration(nil), cfg.RateLimitTable...),
		jitterMin: cfg.JitterMin,
		jitterMax: cfg.JitterMax,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// NewPolicyFromConfig creates a Policy from the [backoff] configuration section.
func NewPolicyFromConfig(cfg common.BackoffConfig) *Policy {
	return NewPolicy(Config{
		Base:           cfg.Base.Duration,
		RateLimitTable: common.Durations(cfg.RateLimitTable),
		JitterMin:      cfg.JitterMin,
		JitterMax:      cfg.JitterMax,
		Seed:           cfg.Seed,
	})
}

// NextDelay returns the delay before retrying after the given attempt (1-based).
// Rate-limited failures use the progressive table; everything else is
// exponential from the base delay.
func (p *Policy) NextDelay(attempt int, class models.FailureClass) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	if class == models.FailureRateLimited {
		idx := attempt - 1
		if idx > len(p.table)-1 {
			idx = len(p.table) - 1
		}
		return p.Jitter(p.table[idx])
	}

	return p.Exponential(p.base, attempt)
}

// Exponential returns base * 2^(attempt-1), jittered.
func (p *Policy) Exponential(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	return p.Jitter(base * time.Duration(1<<uint(shift)))
}

// Jitter scales d by a factor drawn uniformly from [JitterMin, JitterMax].
func (p *Policy) Jitter(d time.Duration) time.Duration {
	p.mu.Lock()
	factor := p.jitterMin + p.rng.Float64()*(p.jitterMax-p.jitterMin)
	p.mu.Unlock()

	return time.Duration(float64(d) * factor)
}

// Bounds returns the jitter range applied by the policy.
func (p *Policy) Bounds() (float64, float64) {
	return p.jitterMin, p.jitterMax
}

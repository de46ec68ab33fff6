package backoff

import (
	"errors"
	"math"
	"time"
)

// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy computes the wait before the next attempt.
type RetryPolicy interface {
	// ComputeNextInterval returns the duration to wait before retry number
	// retryCount (zero-based), or an error if no more retries should be attempted.
	ComputeNextInterval(retryCount int) (time.Duration, error)
}

const (
	defaultBackoffFactor = 2.0
	defaultMaxInterval   = 5 * time.Minute
)

// ConstantBackoffPolicy waits the same interval before every retry.
type ConstantBackoffPolicy struct {
	Interval time.Duration `json:"interval,omitempty"`
	// MaxRetries is the maximum number of retries allowed. 0 means unlimited.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewConstantBackoffPolicy creates a ConstantBackoffPolicy with no retry cap.
func NewConstantBackoffPolicy(interval time.Duration) *ConstantBackoffPolicy {
	return &ConstantBackoffPolicy{Interval: interval}
}

// ComputeNextInterval returns a constant interval for each retry.
func (p *ConstantBackoffPolicy) ComputeNextInterval(retryCount int) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// ExponentialBackoffPolicy multiplies the interval by BackoffFactor after
// each retry, capped at MaxInterval.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration `json:"initialInterval,omitempty"`
	BackoffFactor   float64       `json:"backoffFactor,omitempty"`
	MaxInterval     time.Duration `json:"maxInterval,omitempty"`
	// MaxRetries is the maximum number of retries allowed. 0 means unlimited.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewExponentialBackoffPolicy creates an ExponentialBackoffPolicy with the
// default factor and cap.
func NewExponentialBackoffPolicy(initialInterval time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
	}
}

// ComputeNextInterval computes the next retry interval using exponential backoff.
func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	factor := p.BackoffFactor
	if factor <= 0 {
		factor = defaultBackoffFactor
	}
	interval := float64(p.InitialInterval) * math.Pow(factor, float64(retryCount))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// Package retry implements the pure retry decision function for failed
// task attempts. The engine owns the attempt counter; this package only
// decides, with no side effects and no I/O.
package retry

import (
	"math"
	"time"

	"github.com/milad-o/agenticflow/pkg/models"
)

// Outcome is the decision after evaluating a failed attempt.
type Outcome int

const (
	// RetryAfter indicates the task should be re-queued after a delay.
	RetryAfter Outcome = iota
	// GiveUp indicates the task should transition to failed.
	GiveUp
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case RetryAfter:
		return "retry_after"
	case GiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating a failure against a policy.
type Decision struct {
	// Outcome is RetryAfter or GiveUp.
	Outcome Outcome
	// Delay is the backoff before the next attempt. Zero when giving up.
	Delay time.Duration
}

// Decide evaluates a failed attempt against the given policy.
// attemptsMade is the 1-indexed count of attempts including the one that
// just failed. The function is pure: identical inputs yield identical output.
//
// GiveUp when attemptsMade >= MaxAttempts or the category is not retryable;
// otherwise RetryAfter(min(MaxDelay, InitialDelay * Multiplier^(attemptsMade-1))).
func Decide(policy models.RetryPolicy, attemptsMade int, category models.ErrorCategory) Decision {
	if attemptsMade >= policy.MaxAttempts {
		return Decision{Outcome: GiveUp}
	}
	if !policy.Retryable(category) {
		return Decision{Outcome: GiveUp}
	}

	return Decision{Outcome: RetryAfter, Delay: backoff(policy, attemptsMade)}
}

// backoff computes the exponential delay for the given attempt count,
// clamped to the policy's MaxDelay.
func backoff(policy models.RetryPolicy, attemptsMade int) time.Duration {
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(policy.InitialDelay) * math.Pow(multiplier, float64(attemptsMade-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	if delay < 0 || delay > math.MaxInt64 {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

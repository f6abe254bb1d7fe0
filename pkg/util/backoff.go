package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/viper"
)

const (
	paramRetryInterval = "retry-interval"
	paramRetryMaxCount = "retry-max-count"
	paramRetryMaxTime  = "retry-max-time"
	paramRetryPolicy   = "retry-policy"

	defaultRetryInterval = 1 * time.Second
	defaultRetryMaxCount = 0
	defaultRetryMaxTime  = 15 * time.Second
	defaultRetryPolicy   = policyExponential

	policyConstant    = "constant"
	policyDisabled    = "disabled"
	policyExponential = "exponential"
)

// BackoffFactory makes a fresh backoff.BackOff for each retry sequence.
// Policies are stateful and must not be shared between sequences.
type BackoffFactory func() backoff.BackOff

// NewBackoffFactory builds a BackoffFactory on top of backoff.ExponentialBackOff.
// A constant policy is expressed as an exponential one with a multiplier of 1.0,
// which still gets interval randomization and a maximum elapsed time, neither of
// which backoff.ConstantBackOff offers.  A maxRetries of zero means no retry cap.
func NewBackoffFactory(multiplier float64, maxElapsedTime, interval time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.MaxElapsedTime = maxElapsedTime
		bo.InitialInterval = interval
		bo.Reset() // Reset is required to make the InitialInterval change take effect.
		if maxRetries == 0 {
			return bo
		}
		return backoff.WithMaxRetries(bo, maxRetries)
	}
}

// GetRetryFromViper builds a BackoffFactory from the retry-* keys of the
// supplied (typically sub) viper.  The disabled policy produces a backoff that
// stops on the first query, so callers get exactly one attempt.
func GetRetryFromViper(v *viper.Viper) (BackoffFactory, error) {
	v.SetDefault(paramRetryInterval, defaultRetryInterval)
	v.SetDefault(paramRetryMaxCount, defaultRetryMaxCount)
	v.SetDefault(paramRetryMaxTime, defaultRetryMaxTime)
	v.SetDefault(paramRetryPolicy, defaultRetryPolicy)

	interval := v.GetDuration(paramRetryInterval)
	maxCount := v.GetInt64(paramRetryMaxCount)
	maxTime := v.GetDuration(paramRetryMaxTime)

	if interval <= 0 {
		return nil, errors.New(paramRetryInterval + " must be positive")
	}
	if maxCount < 0 {
		return nil, errors.New(paramRetryMaxCount + " must be zero or positive")
	}
	if maxTime <= 0 {
		return nil, errors.New(paramRetryMaxTime + " must be positive")
	}

	switch policy := v.GetString(paramRetryPolicy); policy {
	case policyDisabled:
		return func() backoff.BackOff { return &backoff.StopBackOff{} }, nil
	case policyExponential:
		return NewBackoffFactory(backoff.DefaultMultiplier, maxTime, backoff.DefaultInitialInterval, uint64(maxCount)), nil
	case policyConstant:
		return NewBackoffFactory(1.0, maxTime, interval, uint64(maxCount)), nil
	default:
		return nil, fmt.Errorf("%s (%s) not one of %s, %s, or %s", paramRetryPolicy, policy, policyDisabled, policyConstant, policyExponential)
	}
}

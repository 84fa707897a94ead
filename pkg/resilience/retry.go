// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resilience provides the retry and circuit-breaking primitives
// shared by every outbound HTTP call the pipeline makes.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy controls Retry's backoff schedule.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy mirrors the upstream miner's fetch retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

// ErrNonRetryable wraps an error to signal Retry should stop immediately.
type ErrNonRetryable struct{ Err error }

func (e *ErrNonRetryable) Error() string { return e.Err.Error() }
func (e *ErrNonRetryable) Unwrap() error { return e.Err }

// NonRetryable marks err so Retry will not attempt it again.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &ErrNonRetryable{Err: err}
}

// Retry calls fn up to policy.MaxRetries+1 times, applying exponential
// backoff with +/-15% jitter between attempts. It stops early if ctx is
// canceled or fn returns an error wrapped with NonRetryable.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var nonRetryable *ErrNonRetryable
		if errors.As(err, &nonRetryable) {
			return nonRetryable.Err
		}

		if attempt == policy.MaxRetries {
			break
		}

		wait := jitter(backoff)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.Multiplier)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return lastErr
}

// jitter returns d scaled by a random factor in [0.85, 1.15].
func jitter(d time.Duration) time.Duration {
	factor := 0.85 + rand.Float64()*0.30
	return time.Duration(float64(d) * factor)
}

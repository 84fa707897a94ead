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

package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// HostBreakers keeps one circuit breaker per upstream host so a single
// flaky auctioneer site cannot starve requests to every other host.
type HostBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	failureThreshold uint32
	resetTimeout      time.Duration
}

// NewHostBreakers builds a registry with the given failure threshold and
// reset timeout. Defaults mirror the upstream miner: 8 consecutive
// failures opens the breaker, 60s before a half-open probe is allowed.
func NewHostBreakers(failureThreshold uint32, resetTimeout time.Duration) *HostBreakers {
	return &HostBreakers{
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// For returns the breaker for host, creating it on first use.
func (h *HostBreakers) For(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.breakers[host]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     h.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= h.failureThreshold
		},
	}
	b := gobreaker.NewCircuitBreaker(settings)
	h.breakers[host] = b
	return b
}

// Execute runs fn through the breaker registered for host.
func (h *HostBreakers) Execute(host string, fn func() (any, error)) (any, error) {
	return h.For(host).Execute(fn)
}

// State reports the current state of host's breaker, "closed" if one was
// never created (i.e. the host has never failed).
func (h *HostBreakers) State(host string) string {
	h.mu.Lock()
	b, ok := h.breakers[host]
	h.mu.Unlock()
	if !ok {
		return "closed"
	}
	return b.State().String()
}

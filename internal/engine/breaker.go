// Copyright 2025 The Flowsmith Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"sync"
	"time"

	"github.com/flowsmith/flowsmith/internal/metrics"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// breaker is a two-state circuit breaker guarding the remote engine.
// It opens after `threshold` consecutive failures and lets the next call
// through once `timeout` has elapsed since it opened. The breaker belongs
// to one Client and is shared by every call through that Client; a fresh
// client per call would defeat it.
type breaker struct {
	mu        sync.Mutex
	threshold int
	timeout   time.Duration
	now       func() time.Time

	failures int
	open     bool
	openedAt time.Time
}

func newBreaker(threshold int, timeout time.Duration, now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{threshold: threshold, timeout: timeout, now: now}
}

// allow gates a call. While open and within the timeout it fails fast
// with CircuitOpenError. Once the timeout elapses the breaker closes and
// the call proceeds as a probe with a clean failure count.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}

	elapsed := b.now().Sub(b.openedAt)
	if elapsed > b.timeout {
		b.open = false
		b.failures = 0
		metrics.BreakerOpen.Set(0)
		return nil
	}
	return &flowerrors.CircuitOpenError{
		Since:      b.openedAt,
		RetryAfter: b.timeout - elapsed,
	}
}

// success resets the failure counter and closes the breaker.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.open {
		b.open = false
		metrics.BreakerOpen.Set(0)
	}
}

// failure records one exhausted call. Reaching the threshold opens the
// breaker and stamps the time of the tripping failure.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold && !b.open {
		b.open = true
		b.openedAt = b.now()
		metrics.BreakerOpen.Set(1)
	}
}

// failureCount is read by tests.
func (b *breaker) failureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

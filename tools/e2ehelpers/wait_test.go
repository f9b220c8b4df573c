// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package e2ehelpers

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastTimeouts shortens the package timeouts for the duration of the test.
func fastTimeouts(t *testing.T) {
	t.Helper()
	load, lookup, poll := LoadTimeout, LookupTimeout, PollingInterval
	LoadTimeout = 200 * time.Millisecond
	LookupTimeout = 100 * time.Millisecond
	PollingInterval = 5 * time.Millisecond
	t.Cleanup(func() {
		LoadTimeout, LookupTimeout, PollingInterval = load, lookup, poll
	})
}

func TestWaitUntil(t *testing.T) {
	errFlaky := errors.New("flaky")

	t.Run("TrueAfterRetries", func(t *testing.T) {
		calls := 0
		err := WaitUntil(t.Context(), func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		}, time.Millisecond, time.Second)
		if err != nil {
			t.Fatalf("WaitUntil: %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
	})

	t.Run("ErrorsAreRetried", func(t *testing.T) {
		calls := 0
		err := WaitUntil(t.Context(), func(context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, errFlaky
			}
			return true, nil
		}, time.Millisecond, time.Second)
		if err != nil {
			t.Fatalf("WaitUntil: %v", err)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		start := time.Now()
		err := WaitUntil(t.Context(), func(context.Context) (bool, error) {
			return false, nil
		}, time.Millisecond, 50*time.Millisecond)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Expected ErrTimeout, got %v", err)
		}
		if d := time.Since(start); d < 50*time.Millisecond {
			t.Errorf("Expected to wait at least 50ms, waited %v", d)
		}
	})

	t.Run("TimeoutKeepsLastError", func(t *testing.T) {
		err := WaitUntil(t.Context(), func(context.Context) (bool, error) {
			return false, errFlaky
		}, time.Millisecond, 20*time.Millisecond)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("Expected ErrTimeout, got %v", err)
		}
		if !errors.Is(err, errFlaky) {
			t.Errorf("Expected wrapped condition error, got %v", err)
		}
	})

	t.Run("BlockedCondition", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
		defer cancel()
		start := time.Now()
		err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		}, 10*time.Millisecond, 200*time.Millisecond)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Expected ErrTimeout, got %v", err)
		}
		if d := time.Since(start); d > time.Second {
			t.Errorf("Expected the wait to end near its 200ms ceiling, waited %v", d)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		calls := 0
		err := WaitUntil(ctx, func(context.Context) (bool, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return false, nil
		}, time.Millisecond, time.Minute)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if errors.Is(err, ErrTimeout) {
			t.Errorf("Cancellation should not be reported as a timeout: %v", err)
		}
	})
}

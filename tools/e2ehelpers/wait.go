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
	"fmt"
	"time"
)

var (
	// ErrElementNotFound is returned when a required element is absent.
	ErrElementNotFound = errors.New("element not found")
	// ErrTimeout is returned when a wait exceeds its ceiling.
	ErrTimeout = errors.New("timeout")
)

// Default timeouts. Tests against slow deployments may raise them.
var (
	LoadTimeout     = 30 * time.Second
	PollingInterval = 100 * time.Millisecond
	LookupTimeout   = 5 * time.Second
)

// WaitUntil calls cond every interval until it returns true. Errors from cond
// are retried. After ceiling, it returns ErrTimeout wrapping the last error
// cond returned, if any. Each call to cond gets a context that ends at the
// ceiling, so a blocked cond cannot extend the wait. Cancellation of ctx is
// returned as is.
func WaitUntil(ctx context.Context, cond func(context.Context) (bool, error), interval, ceiling time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeout := func(lastErr error) error {
		if lastErr != nil {
			return fmt.Errorf("%w after %v: %w", ErrTimeout, ceiling, lastErr)
		}
		return fmt.Errorf("%w after %v", ErrTimeout, ceiling)
	}

	var lastErr error
	for {
		ok, err := cond(wctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil && ok {
			return nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wctx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return timeout(lastErr)
		case <-ticker.C:
		}
	}
}

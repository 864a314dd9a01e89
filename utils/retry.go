/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/dashevo/drive/types"
)

// NewBackoff returns a capped exponential backoff stopping after retries attempts.
func NewBackoff(base, max time.Duration, retries uint64) (b retry.Backoff, err error) {
	if b, err = retry.NewExponential(base); err != nil {
		err = errors.Wrap(err, "create backoff failed")
		return
	}
	if max > 0 {
		b = retry.WithCappedDuration(max, b)
	}
	b = retry.WithMaxRetries(retries, b)
	return
}

// RetryTransient calls fn until it succeeds, fails with an error outside the transient
// class, or b is exhausted. onRetry, when set, sees every retried failure.
func RetryTransient(ctx context.Context, b retry.Backoff, fn func(ctx context.Context) error,
	onRetry func(err error)) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && types.IsTransient(err) {
			if onRetry != nil {
				onRetry(err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}

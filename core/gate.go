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

package core

import (
	"context"

	"github.com/dashevo/drive/utils/log"
)

// FinalityGate blocks callers until a height is covered by a chain lock.
type FinalityGate struct {
	tracker *ChainLockTracker
}

// NewFinalityGate returns a gate over tracker.
func NewFinalityGate(tracker *ChainLockTracker) *FinalityGate {
	return &FinalityGate{tracker: tracker}
}

// WaitForChainLockedHeight returns once height is chain locked. It fails with
// ErrMissingChainLock when no chain lock was ever observed and imposes no timeout of its own.
func (g *FinalityGate) WaitForChainLockedHeight(ctx context.Context, height uint32) (err error) {
	w, err := g.tracker.await(height)
	if err != nil || w == nil {
		return
	}

	log.WithField("height", height).Debug("core: waiting for chain locked height")
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		g.tracker.removeWaiter(w)
		select {
		case <-w.ch:
			return nil
		default:
			return ctx.Err()
		}
	}
}

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

// Package core tracks finality proofs of the consensus chain and gates reads on them.
package core

import (
	"sync"

	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

type waitItem struct {
	height   uint32
	doneOnce sync.Once
	ch       chan struct{}
}

func newWaitItem(height uint32) *waitItem {
	return &waitItem{
		height: height,
		ch:     make(chan struct{}),
	}
}

func (w *waitItem) done() {
	w.doneOnce.Do(func() {
		close(w.ch)
	})
}

// ChainLockTracker holds the latest chain lock. It is constructed once and shared by
// reference with everything that needs finality information.
type ChainLockTracker struct {
	sync.Mutex
	current   *types.ChainLock
	waiters   map[uint32][]*waitItem
	nextSubID uint64
	listeners map[uint64]func(types.ChainLock)
}

// NewChainLockTracker returns a tracker without a chain lock.
func NewChainLockTracker() *ChainLockTracker {
	return &ChainLockTracker{
		waiters:   make(map[uint32][]*waitItem),
		listeners: make(map[uint64]func(types.ChainLock)),
	}
}

// ChainLock returns a copy of the current chain lock.
func (t *ChainLockTracker) ChainLock() (lock types.ChainLock, ok bool) {
	t.Lock()
	defer t.Unlock()
	if t.current == nil {
		return
	}
	return *t.current, true
}

// Update accepts lock unless it is lower than the current one. An accepted lock, including
// one re-asserting the current height, resolves the waiters it covers and notifies listeners.
func (t *ChainLockTracker) Update(lock *types.ChainLock) (accepted bool) {
	if lock == nil {
		return false
	}

	t.Lock()
	if t.current != nil && lock.Height < t.current.Height {
		current := t.current.Height
		t.Unlock()
		log.WithFields(log.Fields{
			"height":  lock.Height,
			"current": current,
		}).Debug("core: ignore stale chain lock")
		return false
	}
	accepted = true
	cp := *lock
	t.current = &cp

	var resolved []*waitItem
	for h, items := range t.waiters {
		if h <= cp.Height {
			resolved = append(resolved, items...)
			delete(t.waiters, h)
		}
	}
	listeners := make([]func(types.ChainLock), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.Unlock()

	metric.ChainLockedHeight.Set(float64(cp.Height))
	log.WithFields(log.Fields{
		"height":     cp.Height,
		"block_hash": cp.BlockHash.Short(4),
		"waiters":    len(resolved),
	}).Debug("core: chain lock updated")

	for _, w := range resolved {
		w.done()
	}
	for _, fn := range listeners {
		fn(cp)
	}
	return
}

// Subscribe registers fn for every accepted chain lock and returns its cancel function.
func (t *ChainLockTracker) Subscribe(fn func(types.ChainLock)) (cancel func()) {
	t.Lock()
	defer t.Unlock()
	t.nextSubID++
	id := t.nextSubID
	t.listeners[id] = fn
	return func() {
		t.Lock()
		defer t.Unlock()
		delete(t.listeners, id)
	}
}

// await returns nil when height is already covered, or a wait item resolved once it is.
func (t *ChainLockTracker) await(height uint32) (w *waitItem, err error) {
	t.Lock()
	defer t.Unlock()
	if t.current == nil {
		err = ErrMissingChainLock
		return
	}
	if t.current.Covers(height) {
		return
	}
	w = newWaitItem(height)
	t.waiters[height] = append(t.waiters[height], w)
	return
}

func (t *ChainLockTracker) removeWaiter(w *waitItem) {
	t.Lock()
	defer t.Unlock()
	items := t.waiters[w.height]
	for i, item := range items {
		if item == w {
			items = append(items[:i], items[i+1:]...)
			break
		}
	}
	if len(items) == 0 {
		delete(t.waiters, w.height)
	} else {
		t.waiters[w.height] = items
	}
}

func (t *ChainLockTracker) pendingWaiters() (n int) {
	t.Lock()
	defer t.Unlock()
	for _, items := range t.waiters {
		n += len(items)
	}
	return
}

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
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/dashevo/drive/types"
)

func waitAsync(ctx context.Context, g *FinalityGate, height uint32) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- g.WaitForChainLockedHeight(ctx, height) }()
	return ch
}

func waitPending(t *ChainLockTracker, n int) {
	for t.pendingWaiters() != n {
		time.Sleep(time.Millisecond)
	}
}

func TestChainLockTracker(t *testing.T) {
	Convey("tracker accepts chain locks monotonically", t, func() {
		tracker := NewChainLockTracker()
		_, ok := tracker.ChainLock()
		So(ok, ShouldBeFalse)
		So(tracker.Update(nil), ShouldBeFalse)

		var (
			mu       sync.Mutex
			notified []uint32
		)
		cancel := tracker.Subscribe(func(l types.ChainLock) {
			mu.Lock()
			notified = append(notified, l.Height)
			mu.Unlock()
		})

		So(tracker.Update(&types.ChainLock{Height: 10}), ShouldBeTrue)
		So(tracker.Update(&types.ChainLock{Height: 9}), ShouldBeFalse)
		So(tracker.Update(&types.ChainLock{Height: 10, Signature: "again"}), ShouldBeTrue)
		lock, ok := tracker.ChainLock()
		So(ok, ShouldBeTrue)
		So(lock.Height, ShouldEqual, 10)
		So(lock.Signature, ShouldEqual, "again")

		cancel()
		So(tracker.Update(&types.ChainLock{Height: 11}), ShouldBeTrue)
		So(notified, ShouldResemble, []uint32{10, 10})
	})

	Convey("stored chain lock is a copy", t, func() {
		tracker := NewChainLockTracker()
		lock := &types.ChainLock{Height: 5}
		tracker.Update(lock)
		lock.Height = 500
		got, _ := tracker.ChainLock()
		So(got.Height, ShouldEqual, 5)
	})

	Convey("concurrent stale and fresh updates keep the highest lock", t, func() {
		tracker := NewChainLockTracker()
		var wg sync.WaitGroup
		for i := uint32(1); i <= 64; i++ {
			wg.Add(1)
			go func(h uint32) {
				defer wg.Done()
				tracker.Update(&types.ChainLock{Height: h})
				tracker.Update(&types.ChainLock{Height: h / 2})
			}(i)
		}
		wg.Wait()
		got, ok := tracker.ChainLock()
		So(ok, ShouldBeTrue)
		So(got.Height, ShouldEqual, 64)
	})
}

func TestFinalityGate(t *testing.T) {
	Convey("gate without any chain lock", t, func() {
		gate := NewFinalityGate(NewChainLockTracker())
		So(gate.WaitForChainLockedHeight(context.Background(), 1), ShouldEqual, ErrMissingChainLock)
	})

	Convey("gate with a covering chain lock returns immediately", t, func() {
		tracker := NewChainLockTracker()
		tracker.Update(&types.ChainLock{Height: 100})
		gate := NewFinalityGate(tracker)
		So(gate.WaitForChainLockedHeight(context.Background(), 100), ShouldBeNil)
		So(gate.WaitForChainLockedHeight(context.Background(), 3), ShouldBeNil)
		So(tracker.pendingWaiters(), ShouldEqual, 0)
	})

	Convey("gate parks callers until an update reaches their height", t, func() {
		defer leaktest.Check(t)()

		tracker := NewChainLockTracker()
		tracker.Update(&types.ChainLock{Height: 10})
		gate := NewFinalityGate(tracker)
		ctx := context.Background()

		w12a := waitAsync(ctx, gate, 12)
		w12b := waitAsync(ctx, gate, 12)
		w13 := waitAsync(ctx, gate, 13)
		w20 := waitAsync(ctx, gate, 20)
		waitPending(tracker, 4)

		tracker.Update(&types.ChainLock{Height: 11})
		select {
		case <-w12a:
			t.Fatal("resolved before height was reached")
		case <-time.After(20 * time.Millisecond):
		}

		tracker.Update(&types.ChainLock{Height: 13})
		So(<-w12a, ShouldBeNil)
		So(<-w12b, ShouldBeNil)
		So(<-w13, ShouldBeNil)
		So(tracker.pendingWaiters(), ShouldEqual, 1)

		tracker.Update(&types.ChainLock{Height: 25})
		So(<-w20, ShouldBeNil)
		So(tracker.pendingWaiters(), ShouldEqual, 0)
	})

	Convey("cancelled waiters leave the registry", t, func() {
		defer leaktest.Check(t)()

		tracker := NewChainLockTracker()
		tracker.Update(&types.ChainLock{Height: 1})
		gate := NewFinalityGate(tracker)

		ctx, cancel := context.WithCancel(context.Background())
		w := waitAsync(ctx, gate, 50)
		waitPending(tracker, 1)
		cancel()
		So(<-w, ShouldEqual, context.Canceled)
		So(tracker.pendingWaiters(), ShouldEqual, 0)
	})
}

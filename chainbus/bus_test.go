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

package chainbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testTopic Topic = "/event/test"

type testEvent struct {
	topic Topic
	value int
}

func (e *testEvent) Topic() Topic { return e.topic }

func newEvent(v int) *testEvent { return &testEvent{topic: testTopic, value: v} }

func TestHasCallback(t *testing.T) {
	bus := New()
	bus.Subscribe(testTopic, func(context.Context, Event) error { return nil })
	if bus.HasCallback("/event/test2") {
		t.Fail()
	}
	if !bus.HasCallback(testTopic) {
		t.Fail()
	}
}

func TestSubscribeOnceAndManySubscribe(t *testing.T) {
	bus := New()
	flag := 0
	fn := func(context.Context, Event) error { flag++; return nil }
	bus.SubscribeOnce(testTopic, fn)
	bus.Subscribe(testTopic, fn)
	bus.Subscribe(testTopic, fn)
	if err := bus.Publish(context.Background(), newEvent(1)); err != nil {
		t.Fatal(err)
	}
	if flag != 3 {
		t.Fatalf("expected 3 calls, got %d", flag)
	}
	if err := bus.Publish(context.Background(), newEvent(2)); err != nil {
		t.Fatal(err)
	}
	if flag != 5 {
		t.Fatalf("once handler ran twice, got %d calls", flag)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	handler := func(context.Context, Event) error { return nil }
	bus.Subscribe(testTopic, handler)
	if bus.Unsubscribe(testTopic, handler) != nil {
		t.Fail()
	}
	if err := bus.Unsubscribe(testTopic, handler); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPublishOrder(t *testing.T) {
	bus := New()
	var seen []int
	for i := 0; i < 3; i++ {
		i := i
		bus.Subscribe(testTopic, func(_ context.Context, ev Event) error {
			seen = append(seen, i*10+ev.(*testEvent).value)
			return nil
		})
	}
	if err := bus.Publish(context.Background(), newEvent(1)); err != nil {
		t.Fatal(err)
	}
	want := []int{1, 11, 21}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected order %v", seen)
		}
	}
}

func TestPublishWaitsForAsync(t *testing.T) {
	bus := New()
	var done int32
	for i := 0; i < 4; i++ {
		bus.SubscribeAsync(testTopic, func(context.Context, Event) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		}, false)
	}
	if err := bus.Publish(context.Background(), newEvent(1)); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&done); n != 4 {
		t.Fatalf("publish returned before async handlers finished: %d", n)
	}
}

func TestTransactionalAsync(t *testing.T) {
	bus := New()
	var (
		running int32
		overlap int32
	)
	fn := func(context.Context, Event) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	bus.SubscribeAsync(testTopic, fn, true)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newEvent(v))
		}(i)
	}
	wg.Wait()
	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatal("transactional handler ran concurrently")
	}
}

func TestPublishAggregatesErrors(t *testing.T) {
	bus := New()
	errA := errors.New("a failed")
	bus.Subscribe(testTopic, func(context.Context, Event) error { return errA })
	bus.SubscribeAsync(testTopic, func(context.Context, Event) error { panic("boom") }, false)
	called := false
	bus.Subscribe(testTopic, func(context.Context, Event) error { called = true; return nil })

	err := bus.Publish(context.Background(), newEvent(1))
	if err == nil || !errors.Is(err, errA) {
		t.Fatalf("expected aggregated error, got %v", err)
	}
	if !called {
		t.Fatal("later handlers must still run")
	}
}

func TestPublishFromHandler(t *testing.T) {
	bus := New()
	const nested Topic = "/event/nested"
	var got int
	bus.Subscribe(nested, func(_ context.Context, ev Event) error {
		got = ev.(*testEvent).value
		return nil
	})
	bus.Subscribe(testTopic, func(ctx context.Context, ev Event) error {
		return bus.Publish(ctx, &testEvent{topic: nested, value: ev.(*testEvent).value + 1})
	})
	if err := bus.Publish(context.Background(), newEvent(41)); err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("nested publish not delivered: %d", got)
	}
}

func TestPublishCancelled(t *testing.T) {
	bus := New()
	called := false
	bus.Subscribe(testTopic, func(context.Context, Event) error { called = true; return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, newEvent(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error %v", err)
	}
	if called {
		t.Fatal("handler ran on cancelled context")
	}
}

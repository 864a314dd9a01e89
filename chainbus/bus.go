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

// Package chainbus dispatches chain events to subscribers and waits for every handler,
// synchronous or not, before Publish returns.
package chainbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/utils/log"
)

// Topic names a kind of event.
type Topic string

// Event is a value published on the bus.
type Event interface {
	Topic() Topic
}

// Handler processes one event. A non-nil error is reported to the publisher.
type Handler func(ctx context.Context, ev Event) error

// ErrTopicNotFound indicates an unsubscribe from a topic without handlers.
var ErrTopicNotFound = errors.New("topic has no subscribers")

// ChainSuber defines subscribing-related bus behavior.
type ChainSuber interface {
	Subscribe(topic Topic, fn Handler)
	SubscribeAsync(topic Topic, fn Handler, transactional bool)
	SubscribeOnce(topic Topic, fn Handler)
	Unsubscribe(topic Topic, fn Handler) error
}

// ChainPuber defines publishing-related bus behavior.
type ChainPuber interface {
	Publish(ctx context.Context, ev Event) error
}

// BusController defines bus control behavior.
type BusController interface {
	HasCallback(topic Topic) bool
}

// Bus englobes global (subscribe, publish, control) bus behavior.
type Bus interface {
	BusController
	ChainSuber
	ChainPuber
}

// ChainBus - box for handlers and callbacks.
type ChainBus struct {
	handlers map[Topic][]*eventHandler
	lock     sync.Mutex
}

type eventHandler struct {
	callBack      Handler
	id            uintptr
	flagOnce      bool
	async         bool
	transactional bool
	sync.Mutex    // serializes transactional async callbacks
}

// New returns new ChainBus with empty handlers.
func New() Bus {
	return &ChainBus{
		handlers: make(map[Topic][]*eventHandler),
	}
}

func (bus *ChainBus) doSubscribe(topic Topic, handler *eventHandler) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	handler.id = reflect.ValueOf(handler.callBack).Pointer()
	bus.handlers[topic] = append(bus.handlers[topic], handler)
}

// Subscribe subscribes to a topic. Synchronous handlers run in subscription order.
func (bus *ChainBus) Subscribe(topic Topic, fn Handler) {
	bus.doSubscribe(topic, &eventHandler{callBack: fn})
}

// SubscribeAsync subscribes to a topic with a callback run on its own goroutine.
// Publish still waits for it. Transactional callbacks never run concurrently with
// themselves.
func (bus *ChainBus) SubscribeAsync(topic Topic, fn Handler, transactional bool) {
	bus.doSubscribe(topic, &eventHandler{callBack: fn, async: true, transactional: transactional})
}

// SubscribeOnce subscribes to a topic once. Handler will be removed before executing.
func (bus *ChainBus) SubscribeOnce(topic Topic, fn Handler) {
	bus.doSubscribe(topic, &eventHandler{callBack: fn, flagOnce: true})
}

// HasCallback returns true if exists any callback subscribed to the topic.
func (bus *ChainBus) HasCallback(topic Topic) bool {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return len(bus.handlers[topic]) > 0
}

// Unsubscribe removes the first handler of topic created from the same function as fn.
func (bus *ChainBus) Unsubscribe(topic Topic, fn Handler) error {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if len(bus.handlers[topic]) == 0 {
		return errors.Wrapf(ErrTopicNotFound, "unsubscribe %s", topic)
	}
	bus.removeHandler(topic, bus.findHandlerIdx(topic, reflect.ValueOf(fn).Pointer()))
	return nil
}

// Publish runs every handler of the event topic and returns once all of them completed.
// Handler errors and panics are aggregated into the returned error.
func (bus *ChainBus) Publish(ctx context.Context, ev Event) (err error) {
	topic := ev.Topic()

	// Handlers run unlocked so they may publish or subscribe themselves.
	bus.lock.Lock()
	handlers := make([]*eventHandler, 0, len(bus.handlers[topic]))
	for _, h := range bus.handlers[topic] {
		handlers = append(handlers, h)
	}
	for _, h := range handlers {
		if h.flagOnce {
			bus.removeHandler(topic, bus.indexOf(topic, h))
		}
	}
	bus.lock.Unlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
		record = func(herr error) {
			if herr == nil {
				return
			}
			mu.Lock()
			result = multierror.Append(result, herr)
			mu.Unlock()
		}
	)

	for _, h := range handlers {
		if cerr := ctx.Err(); cerr != nil {
			record(cerr)
			break
		}
		if !h.async {
			record(bus.doPublish(ctx, h, ev))
			continue
		}
		wg.Add(1)
		go func(h *eventHandler) {
			defer wg.Done()
			if h.transactional {
				h.Lock()
				defer h.Unlock()
			}
			record(bus.doPublish(ctx, h, ev))
		}(h)
	}
	wg.Wait()

	if err = result.ErrorOrNil(); err != nil {
		log.WithFields(log.Fields{
			"topic":    topic,
			"handlers": len(handlers),
		}).WithError(err).Debug("event handling failed")
	}
	return
}

func (bus *ChainBus) doPublish(ctx context.Context, handler *eventHandler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", ev.Topic(), r)
		}
	}()
	return handler.callBack(ctx, ev)
}

func (bus *ChainBus) removeHandler(topic Topic, idx int) {
	l := len(bus.handlers[topic])
	if 0 > idx || idx >= l {
		return
	}
	copy(bus.handlers[topic][idx:], bus.handlers[topic][idx+1:])
	bus.handlers[topic][l-1] = nil
	bus.handlers[topic] = bus.handlers[topic][:l-1]
}

func (bus *ChainBus) findHandlerIdx(topic Topic, id uintptr) int {
	for idx, handler := range bus.handlers[topic] {
		if handler.id == id {
			return idx
		}
	}
	return -1
}

func (bus *ChainBus) indexOf(topic Topic, h *eventHandler) int {
	for idx, handler := range bus.handlers[topic] {
		if handler == h {
			return idx
		}
	}
	return -1
}

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

package reader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/utils"
	"github.com/dashevo/drive/utils/log"
)

// Status is the state of the mediator state machine.
type Status int32

const (
	// StatusIdle waits for new blocks.
	StatusIdle Status = iota
	// StatusReading pulls the next header.
	StatusReading
	// StatusEmitting waits for subscribers to handle an event.
	StatusEmitting
	// StatusDiverged unwinds orphaned blocks.
	StatusDiverged
	// StatusStopped halted on shutdown or on a fatal error.
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusReading:
		return "READING"
	case StatusEmitting:
		return "EMITTING"
	case StatusDiverged:
		return "DIVERGED"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// HashFetcher returns the canonical block hash at a height.
type HashFetcher interface {
	GetBlockHash(ctx context.Context, height uint32) (hash.Hash, error)
}

// Config configures a Mediator.
type Config struct {
	// StartHeight is where reading starts from scratch and after a RESET.
	StartHeight uint32
	// RetainedBlocks bounds the reorganization depth handled block by block.
	RetainedBlocks int
	// PollInterval is the pause of Run between syncs without a block notification.
	PollInterval time.Duration
	// RetryBase and RetryMax shape the backoff of transient header source failures.
	RetryBase time.Duration
	RetryMax  time.Duration
	// MaxRetries bounds consecutive retries of one call before the failure is fatal.
	MaxRetries uint64
}

// DefaultConfig returns the reader defaults.
func DefaultConfig() Config {
	return Config{
		StartHeight:    1,
		RetainedBlocks: 100,
		PollInterval:   5 * time.Second,
		RetryBase:      100 * time.Millisecond,
		RetryMax:       10 * time.Second,
		MaxRetries:     20,
	}
}

// Mediator drives the iterator and publishes chain events one at a time. Publish returns
// only after every subscriber completed, so event N+1 never overlaps event N.
type Mediator struct {
	chainbus.Bus

	cfg      Config
	iterator HeaderIterator
	hashes   HashFetcher
	repo     StateRepository

	syncLock sync.Mutex
	status   int32
	running  int32
	retained int32
	window   *chainWindow
	notify   chan struct{}
	fatal    error
}

// NewMediator returns a mediator over iterator. hashes resolves canonical hashes during
// divergence detection and repo persists the retained window.
func NewMediator(cfg Config, iterator HeaderIterator, hashes HashFetcher, repo StateRepository) *Mediator {
	if cfg.RetainedBlocks <= 0 {
		cfg.RetainedBlocks = DefaultConfig().RetainedBlocks
	}
	return &Mediator{
		Bus:      chainbus.New(),
		cfg:      cfg,
		iterator: iterator,
		hashes:   hashes,
		repo:     repo,
		window:   newChainWindow(cfg.RetainedBlocks, nil),
		notify:   make(chan struct{}, 1),
	}
}

// Init restores the retained window and positions the iterator on the tip block, whose
// already emitted transitions are skipped on replay.
func (m *Mediator) Init(ctx context.Context) (err error) {
	m.syncLock.Lock()
	defer m.syncLock.Unlock()

	state, err := m.repo.Fetch(ctx)
	if err != nil {
		return
	}
	if state != nil {
		m.window = newChainWindow(m.cfg.RetainedBlocks, state.Blocks)
	}
	m.retainedChanged()

	if tip := m.window.tip(); tip != nil {
		m.iterator.Reset(tip.Height)
	} else {
		m.iterator.Reset(m.cfg.StartHeight)
	}

	log.WithFields(log.Fields{
		"height":   m.iterator.Height(),
		"retained": m.window.len(),
	}).Info("reader: initialized")
	return
}

// Status returns the current state machine status.
func (m *Mediator) Status() Status {
	return Status(atomic.LoadInt32(&m.status))
}

// Height returns the next block height the iterator will fetch.
func (m *Mediator) Height() uint32 {
	return m.iterator.Height()
}

// RetainedBlocks returns the number of blocks kept for divergence detection.
func (m *Mediator) RetainedBlocks() int {
	return int(atomic.LoadInt32(&m.retained))
}

// Notify wakes Run up before the poll interval elapses.
func (m *Mediator) Notify() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Run syncs to the tip, then waits for Notify or the poll interval, until ctx is done or a
// fatal error halts the state machine.
func (m *Mediator) Run(ctx context.Context) (err error) {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return ErrAlreadyRunning
	}
	defer atomic.StoreInt32(&m.running, 0)
	defer m.setStatus(StatusStopped)

	for {
		if err = m.Sync(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.notify:
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// Sync reads and dispatches headers until the chain tip.
func (m *Mediator) Sync(ctx context.Context) (err error) {
	m.syncLock.Lock()
	defer m.syncLock.Unlock()

	if m.fatal != nil {
		return errors.Wrap(ErrStopped, m.fatal.Error())
	}

	defer func() {
		if err != nil && ctx.Err() == nil {
			m.fatal = err
			m.setStatus(StatusStopped)
			metric.ReaderHalts.Inc()
			log.WithError(err).WithField("height", m.iterator.Height()).Error("reader: halted")
		}
	}()

	for {
		m.setStatus(StatusReading)

		var (
			h    *Header
			done bool
		)
		err = m.withRetry(ctx, func(ctx context.Context) (ierr error) {
			h, done, ierr = m.iterator.Next(ctx)
			return
		})
		if err != nil {
			return
		}
		if done {
			m.setStatus(StatusIdle)
			return
		}
		if err = m.process(ctx, h); err != nil {
			return
		}
	}
}

func (m *Mediator) process(ctx context.Context, h *Header) (err error) {
	if err = h.Validate(); err != nil {
		return
	}

	tip := m.window.tip()
	switch {
	case tip == nil:
		return m.accept(ctx, m.pushNode(h), h)
	case tip.Hash == h.BlockHash:
		if h.IsMarker() || tip.hasTransition(h.Transition.Hash) {
			return
		}
		return m.accept(ctx, tip, h)
	case m.window.find(h.BlockHash) != nil:
		// Replay of a completed block.
		return
	case h.PreviousBlockHash == tip.Hash:
		return m.accept(ctx, m.pushNode(h), h)
	default:
		return m.diverge(ctx, h)
	}
}

func (m *Mediator) pushNode(h *Header) *BlockNode {
	node := &BlockNode{
		Height:            h.Height,
		Hash:              h.BlockHash,
		PreviousBlockHash: h.PreviousBlockHash,
	}
	m.window.push(node)
	m.retainedChanged()
	return node
}

func (m *Mediator) accept(ctx context.Context, node *BlockNode, h *Header) (err error) {
	if h.IsMarker() {
		return m.persist(ctx)
	}

	m.setStatus(StatusEmitting)
	st := *h.Transition
	if err = m.publish(ctx, &StateTransitionEvent{StateTransition: &st, Block: node.Block()}); err != nil {
		return
	}
	node.Transitions = append(node.Transitions, st)
	return m.persist(ctx)
}

// diverge unwinds the retained blocks the canonical chain no longer contains, then rewinds
// the iterator to the block after the common ancestor. The header that revealed the fork
// is dropped and read again from the new position.
func (m *Mediator) diverge(ctx context.Context, h *Header) (err error) {
	m.setStatus(StatusDiverged)

	var ancestor *BlockNode
	for _, node := range m.window.fetchNodeList(0) {
		var canonical hash.Hash
		err = m.withRetry(ctx, func(ctx context.Context) (ierr error) {
			canonical, ierr = m.hashes.GetBlockHash(ctx, node.Height)
			return
		})
		if errors.Is(err, rpc.ErrNotFound) {
			err = nil
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "get canonical hash at %d failed", node.Height)
		}
		if canonical == node.Hash {
			ancestor = node
			break
		}
	}

	lf := log.WithFields(log.Fields{
		"height":     h.Height,
		"block_hash": h.BlockHash.Short(4),
		"tip":        m.window.tip().Height,
	})

	if ancestor == nil {
		lf.Warning("reader: divergence deeper than retained window, resetting")
		return m.reset(ctx)
	}
	lf.WithField("ancestor", ancestor.Height).Info("reader: chain diverged")

	for _, node := range m.window.fetchNodeList(ancestor.Height) {
		block := node.Block()
		for i := len(node.Transitions) - 1; i >= 0; i-- {
			st := node.Transitions[i]
			m.setStatus(StatusEmitting)
			if err = m.publish(ctx, &StateTransitionOrphanedEvent{StateTransition: &st, Block: block}); err != nil {
				return
			}
			metric.OrphanedTransitions.Inc()
			node.Transitions = node.Transitions[:i]
			if err = m.persist(ctx); err != nil {
				return
			}
		}
		m.window.pop()
		m.retainedChanged()
		if err = m.persist(ctx); err != nil {
			return
		}
	}

	m.iterator.Reset(ancestor.Height + 1)
	return
}

func (m *Mediator) reset(ctx context.Context) (err error) {
	m.setStatus(StatusEmitting)
	if err = m.publish(ctx, &ResetEvent{}); err != nil {
		return
	}
	metric.Resets.Inc()
	m.window.clear()
	m.retainedChanged()
	m.iterator.Reset(m.cfg.StartHeight)
	return m.persist(ctx)
}

func (m *Mediator) publish(ctx context.Context, ev chainbus.Event) (err error) {
	if err = m.Publish(ctx, ev); err != nil {
		return errors.Wrapf(err, "handle %s failed", ev.Topic())
	}
	metric.EventsPublished.WithLabelValues(string(ev.Topic())).Inc()
	return
}

func (m *Mediator) persist(ctx context.Context) error {
	return m.repo.Store(ctx, &State{Blocks: m.window.snapshot()})
}

func (m *Mediator) withRetry(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	b, err := utils.NewBackoff(m.cfg.RetryBase, m.cfg.RetryMax, m.cfg.MaxRetries)
	if err != nil {
		return
	}
	return utils.RetryTransient(ctx, b, fn, func(err error) {
		metric.ReaderRetries.Inc()
		log.WithError(err).Debug("reader: transient failure, retrying")
	})
}

func (m *Mediator) setStatus(s Status) {
	atomic.StoreInt32(&m.status, int32(s))
}

func (m *Mediator) retainedChanged() {
	atomic.StoreInt32(&m.retained, int32(m.window.len()))
}

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

package stateview

import (
	"context"
	"database/sql"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils"
	"github.com/dashevo/drive/utils/log"
	"github.com/dashevo/drive/utils/timer"
)

const (
	fetchRetryBase = 100 * time.Millisecond
	fetchRetryMax  = 5 * time.Second
	fetchRetries   = 10
)

// PacketFetcher returns the packet addressed by a content identifier.
type PacketFetcher interface {
	Fetch(ctx context.Context, c cid.Cid) (*types.Packet, error)
}

// TransactionFetcher returns a chain transaction by hash.
type TransactionFetcher interface {
	GetRawTransaction(ctx context.Context, h hash.Hash) (*types.Transaction, error)
}

// Engine applies and reverts state transitions on the records of a Repository. Every
// transition is written in one transaction, and record events are published after commit.
type Engine struct {
	chainbus.Bus

	repo    *Repository
	packets PacketFetcher
	txs     TransactionFetcher
}

// NewEngine returns an engine over repo.
func NewEngine(repo *Repository, packets PacketFetcher, txs TransactionFetcher) *Engine {
	return &Engine{
		Bus:     chainbus.New(),
		repo:    repo,
		packets: packets,
		txs:     txs,
	}
}

// Repository returns the record store of e.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// ApplyStateTransition applies every entity of the packet committed by st.
func (e *Engine) ApplyStateTransition(ctx context.Context, st *types.StateTransitionHeader, block *types.Block) (err error) {
	t := timer.NewTimer()
	p, err := e.fetchPacket(ctx, st.PacketHash)
	if err != nil {
		return
	}
	t.Add("fetch")

	var events []chainbus.Event
	err = e.repo.Tx(ctx, func(tx *sql.Tx) (err error) {
		events = events[:0]
		for _, doc := range p.Entities() {
			var rec *Record
			if rec, err = e.applyDocument(ctx, tx, st, block, p.ContractID, doc); err != nil {
				return
			}
			events = append(events, &EntityUpdatedEvent{Record: rec.Clone()})
		}
		return
	})
	if err != nil {
		return errors.Wrapf(err, "apply state transition %s failed", st.Hash.Short(4))
	}
	t.Add("apply")

	log.WithFields(log.Fields{
		"height":     block.Height,
		"transition": st.Hash.Short(4),
		"entities":   len(events),
	}).WithFields(t.ToLogFields()).Debug("stateview: state transition applied")

	return e.publish(ctx, events)
}

func (e *Engine) applyDocument(ctx context.Context, tx *sql.Tx, st *types.StateTransitionHeader,
	block *types.Block, containerID string, doc *types.Document) (rec *Record, err error) {
	entityHash, err := doc.Hash()
	if err != nil {
		return
	}
	ref := types.NewReference(block, st, entityHash)
	key := RecordKey{ContainerID: containerID, Type: doc.Type, ID: doc.ID}

	if rec, err = e.repo.GetTx(ctx, tx, key); err != nil {
		return
	}

	switch doc.Action {
	case types.ActionCreate:
		if rec != nil && !rec.isTombstone() {
			return nil, errors.Wrapf(ErrDuplicateEntity, "%s %s", doc.Type, doc.ID)
		}
		rec = &Record{
			ContainerID: containerID,
			OwnerID:     st.OwnerID,
			Current:     doc.Clone(),
			Reference:   ref,
		}
		metric.EntityChanges.WithLabelValues("created").Inc()

	case types.ActionUpdate:
		if err = checkLive(rec, doc); err != nil {
			return nil, err
		}
		if doc.Revision != rec.Current.Revision+1 {
			return nil, errors.Wrapf(ErrRevisionOutOfOrder, "%s %s: revision %d after %d",
				doc.Type, doc.ID, doc.Revision, rec.Current.Revision)
		}
		if rec.PreviousRevisions, err = rec.PreviousRevisions.Push(rec.Revision()); err != nil {
			return nil, errors.Wrapf(err, "%s %s", doc.Type, doc.ID)
		}
		rec.Current = doc.Clone()
		rec.Reference = ref
		metric.EntityChanges.WithLabelValues("updated").Inc()

	case types.ActionDelete:
		if err = checkLive(rec, doc); err != nil {
			return nil, err
		}
		rec.IsDeleted = true
		rec.DeletedReference = &ref
		metric.EntityChanges.WithLabelValues("deleted").Inc()

	default:
		return nil, errors.Wrapf(types.ErrInvalidAction, "%s %s: %d", doc.Type, doc.ID, doc.Action)
	}

	err = e.repo.StoreTx(ctx, tx, rec)
	return
}

func checkLive(rec *Record, doc *types.Document) error {
	if rec == nil {
		return errors.Wrapf(ErrRecordNotFound, "%s %s", doc.Type, doc.ID)
	}
	if rec.IsDeleted {
		return errors.Wrapf(ErrEntityDeleted, "%s %s", doc.Type, doc.ID)
	}
	return nil
}

// isTombstone reports whether r is what remains of a reverted CREATE.
func (r *Record) isTombstone() bool {
	return r.IsDeleted && r.DeletedReference == nil && len(r.PreviousRevisions) == 0
}

// RevertStateTransition undoes exactly one version of every record the orphaned transition
// st produced, and restores records it deleted.
func (e *Engine) RevertStateTransition(ctx context.Context, st *types.StateTransitionHeader, block *types.Block) (err error) {
	var events []chainbus.Event
	err = e.repo.Tx(ctx, func(tx *sql.Tx) (err error) {
		events = events[:0]

		deleted, err := e.repo.FindByDeletedTransitionTx(ctx, tx, st.Hash)
		if err != nil {
			return
		}
		for _, rec := range deleted {
			rec.IsDeleted = false
			rec.DeletedReference = nil
			if err = e.repo.StoreTx(ctx, tx, rec); err != nil {
				return
			}
			events = append(events, revertedEvent(rec))
		}

		current, err := e.repo.FindByTransitionTx(ctx, tx, st.Hash)
		if err != nil {
			return
		}
		for _, rec := range current {
			var ev chainbus.Event
			if ev, err = e.revertRecord(ctx, tx, rec); err != nil {
				return
			}
			events = append(events, ev)
		}
		return
	})
	if err != nil {
		return errors.Wrapf(err, "revert state transition %s failed", st.Hash.Short(4))
	}

	log.WithFields(log.Fields{
		"height":     block.Height,
		"transition": st.Hash.Short(4),
		"entities":   len(events),
	}).Info("stateview: state transition reverted")

	return e.publish(ctx, events)
}

func (e *Engine) revertRecord(ctx context.Context, tx *sql.Tx, rec *Record) (ev chainbus.Event, err error) {
	rest, top, ok := rec.PreviousRevisions.Pop()
	if !ok {
		rec.IsDeleted = true
		rec.DeletedReference = nil
		if err = e.repo.StoreTx(ctx, tx, rec); err != nil {
			return
		}
		metric.EntityChanges.WithLabelValues("marked_deleted").Inc()
		return &EntityMarkedDeletedEvent{Record: rec.Clone()}, nil
	}

	key := rec.Key()
	doc, err := e.recoverDocument(ctx, key, top.Reference)
	if err != nil {
		return
	}
	if doc.Revision != top.Revision {
		return nil, errors.Wrapf(ErrRevisionOutOfOrder, "%s %s: recovered revision %d, expected %d",
			key.Type, key.ID, doc.Revision, top.Revision)
	}

	rec.Current = doc.Clone()
	rec.Reference = top.Reference
	rec.PreviousRevisions = rest
	if err = e.repo.StoreTx(ctx, tx, rec); err != nil {
		return
	}
	metric.EntityChanges.WithLabelValues("reverted").Inc()
	return revertedEvent(rec), nil
}

func revertedEvent(rec *Record) *EntityRevertedEvent {
	ev := &EntityRevertedEvent{Record: rec.Clone()}
	if prev, ok := rec.PreviousRevisions.Top(); ok {
		ev.PreviousRevision = &prev
	}
	return ev
}

// recoverDocument loads the document version ref points to from the chain and the packet store.
func (e *Engine) recoverDocument(ctx context.Context, key RecordKey, ref types.Reference) (doc *types.Document, err error) {
	var raw *types.Transaction
	if err = e.retry(ctx, func(ctx context.Context) (ierr error) {
		raw, ierr = e.txs.GetRawTransaction(ctx, ref.TransitionHash)
		return
	}); err != nil {
		return nil, errors.Wrapf(err, "get transaction %s failed", ref.TransitionHash.Short(4))
	}
	st, err := raw.StateTransition()
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", ref.TransitionHash.Short(4))
	}
	p, err := e.fetchPacket(ctx, st.PacketHash)
	if err != nil {
		return
	}
	if doc, err = p.FindDocument(key.ID, ref.EntityHash); err != nil {
		return nil, errors.Wrap(ErrRevisionUnrecoverable, err.Error())
	}
	return
}

// Reset drops every record.
func (e *Engine) Reset(ctx context.Context) (err error) {
	var n int64
	err = e.repo.Tx(ctx, func(tx *sql.Tx) (err error) {
		n, err = e.repo.DeleteAllTx(ctx, tx)
		return
	})
	if err != nil {
		return
	}
	metric.EntityChanges.WithLabelValues("reset").Add(float64(n))
	log.WithField("records", n).Warning("stateview: all records dropped")
	return
}

func (e *Engine) fetchPacket(ctx context.Context, h hash.Hash) (p *types.Packet, err error) {
	c, err := types.PacketCID(h)
	if err != nil {
		return
	}
	if p, err = e.packets.Fetch(ctx, c); err != nil {
		return nil, &packetError{packet: c.String(), cause: err}
	}
	return
}

func (e *Engine) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	b, err := utils.NewBackoff(fetchRetryBase, fetchRetryMax, fetchRetries)
	if err != nil {
		return err
	}
	return utils.RetryTransient(ctx, b, fn, func(err error) {
		log.WithError(err).Debug("stateview: transient failure, retrying")
	})
}

func (e *Engine) publish(ctx context.Context, events []chainbus.Event) (err error) {
	for _, ev := range events {
		if err = e.Publish(ctx, ev); err != nil {
			return errors.Wrapf(err, "handle %s failed", ev.Topic())
		}
	}
	return
}

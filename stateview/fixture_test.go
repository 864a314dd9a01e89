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
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/storage"
	"github.com/dashevo/drive/types"
)

const testContainer = "contract-1"

// fixture is a chain and packet store in memory.
type fixture struct {
	sync.Mutex
	packets map[string]*types.Packet
	txs     map[hash.Hash]*types.Transaction
	block   *types.Block
	seq     uint32

	dir  string
	db   *storage.SQLite3
	repo *Repository
}

func newFixture(ctx context.Context) (f *fixture, err error) {
	f = &fixture{
		packets: make(map[string]*types.Packet),
		txs:     make(map[hash.Hash]*types.Transaction),
	}
	if f.dir, err = ioutil.TempDir("", "drive-stateview"); err != nil {
		return
	}
	if f.db, err = storage.NewSqlite(filepath.Join(f.dir, "stateview.db")); err != nil {
		return
	}
	f.repo, err = NewRepository(ctx, f.db)
	return
}

func (f *fixture) close() {
	f.db.Close()
	os.RemoveAll(f.dir)
}

func (f *fixture) Fetch(ctx context.Context, c cid.Cid) (*types.Packet, error) {
	f.Lock()
	defer f.Unlock()
	p, ok := f.packets[c.String()]
	if !ok {
		return nil, errors.Wrap(rpc.ErrNotFound, c.String())
	}
	return p, nil
}

func (f *fixture) GetRawTransaction(ctx context.Context, h hash.Hash) (*types.Transaction, error) {
	f.Lock()
	defer f.Unlock()
	tx, ok := f.txs[h]
	if !ok {
		return nil, errors.Wrap(rpc.ErrNotFound, h.String())
	}
	return tx, nil
}

// transition mines a block carrying one state transition with docs.
func (f *fixture) transition(docs ...*types.Document) (*types.StateTransitionHeader, *types.Block) {
	p := &types.Packet{ContractID: testContainer, Documents: docs}
	return f.transitionPacket(p)
}

func (f *fixture) transitionPacket(p *types.Packet) (*types.StateTransitionHeader, *types.Block) {
	f.Lock()
	defer f.Unlock()

	ph, err := p.Hash()
	if err != nil {
		panic(err)
	}
	c, err := p.CID()
	if err != nil {
		panic(err)
	}
	f.packets[c.String()] = p

	f.seq++
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], f.seq)
	st := &types.StateTransitionHeader{
		Hash:       hash.DoubleHashH(append(ph.CloneBytes(), seq[:]...)),
		PacketHash: ph,
		OwnerID:    "owner-1",
	}
	f.txs[st.Hash] = &types.Transaction{
		TxID: st.Hash,
		Type: types.StateTransitionType,
		ExtraPayload: &types.StateTransitionPayload{
			RegTxID:    st.OwnerID,
			PacketHash: ph,
		},
	}

	block := &types.Block{Height: 1}
	if f.block != nil {
		block.Height = f.block.Height + 1
		block.PreviousBlockHash = f.block.Hash
	}
	block.Hash = hash.HashH(append(st.Hash.CloneBytes(), seq[:]...))
	block.Transactions = []hash.Hash{st.Hash}
	f.block = block
	return st, block
}

func doc(id string, action types.Action, revision uint32, data map[string]interface{}) *types.Document {
	return &types.Document{
		ID:       id,
		Type:     "note",
		Action:   action,
		Revision: revision,
		Data:     data,
	}
}

func noteKey(id string) RecordKey {
	return RecordKey{ContainerID: testContainer, Type: "note", ID: id}
}

// recorder collects engine events.
type recorder struct {
	sync.Mutex
	events []chainbus.Event
}

func (r *recorder) handle(ctx context.Context, ev chainbus.Event) error {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) list() []chainbus.Event {
	r.Lock()
	defer r.Unlock()
	return append([]chainbus.Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.Lock()
	defer r.Unlock()
	r.events = nil
}

func record(e *Engine) *recorder {
	r := &recorder{}
	e.Subscribe(TopicEntityUpdated, r.handle)
	e.Subscribe(TopicEntityReverted, r.handle)
	e.Subscribe(TopicEntityMarkedDeleted, r.handle)
	return r
}

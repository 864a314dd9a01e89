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

	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/types"
)

var errConnRefused = errors.New("connection refused")

func txHash(name string) hash.Hash     { return hash.HashH([]byte("tx:" + name)) }
func packetHash(name string) hash.Hash { return hash.HashH([]byte("packet:" + name)) }

// fakeChain is an in-memory chain node with a switchable canonical chain.
type fakeChain struct {
	sync.Mutex
	canonical []hash.Hash
	blocks    map[hash.Hash]*types.Block
	txs       map[hash.Hash]*types.Transaction
	failures  map[string]int
	calls     map[string]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		canonical: []hash.Hash{{}},
		blocks:    make(map[hash.Hash]*types.Block),
		txs:       make(map[hash.Hash]*types.Transaction),
		failures:  make(map[string]int),
		calls:     make(map[string]int),
	}
}

// block adds a block carrying one regular transaction and the named state transitions.
func (c *fakeChain) block(tag string, parent *types.Block, transitions ...string) *types.Block {
	c.Lock()
	defer c.Unlock()

	b := &types.Block{
		Height: 1,
		Hash:   hash.HashH([]byte("block:" + tag)),
	}
	if parent != nil {
		b.Height = parent.Height + 1
		b.PreviousBlockHash = parent.Hash
	}

	coinbase := &types.Transaction{TxID: txHash("coinbase:" + tag)}
	c.txs[coinbase.TxID] = coinbase
	b.Transactions = append(b.Transactions, coinbase.TxID)

	for _, name := range transitions {
		tx := &types.Transaction{
			TxID: txHash(name),
			Type: types.StateTransitionType,
			ExtraPayload: &types.StateTransitionPayload{
				RegTxID:    "owner",
				PacketHash: packetHash(name),
			},
		}
		c.txs[tx.TxID] = tx
		b.Transactions = append(b.Transactions, tx.TxID)
	}
	c.blocks[b.Hash] = b
	return b
}

// malformed adds a block whose only state transition lacks its payload.
func (c *fakeChain) malformed(tag string, parent *types.Block) *types.Block {
	b := c.block(tag, parent)

	c.Lock()
	defer c.Unlock()
	tx := &types.Transaction{TxID: txHash("malformed:" + tag), Type: types.StateTransitionType}
	c.txs[tx.TxID] = tx
	b.Transactions = append(b.Transactions, tx.TxID)
	return b
}

// setCanonical replaces the canonical chain with blocks, ordered by height from 1.
func (c *fakeChain) setCanonical(blocks ...*types.Block) {
	c.Lock()
	defer c.Unlock()
	c.canonical = []hash.Hash{{}}
	for _, b := range blocks {
		c.canonical = append(c.canonical, b.Hash)
	}
}

// fail makes the next n calls of method fail with a transient error.
func (c *fakeChain) fail(method string, n int) {
	c.Lock()
	defer c.Unlock()
	c.failures[method] = n
}

func (c *fakeChain) called(method string) int {
	c.Lock()
	defer c.Unlock()
	return c.calls[method]
}

func (c *fakeChain) enter(ctx context.Context, method string) error {
	c.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.failures[method] > 0 {
		c.failures[method]--
		return types.AsTransient(errors.Wrap(errConnRefused, method))
	}
	return nil
}

func (c *fakeChain) GetBlockCount(ctx context.Context) (uint32, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.enter(ctx, "getblockcount"); err != nil {
		return 0, err
	}
	return uint32(len(c.canonical) - 1), nil
}

func (c *fakeChain) GetBlockHash(ctx context.Context, height uint32) (hash.Hash, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.enter(ctx, "getblockhash"); err != nil {
		return hash.Hash{}, err
	}
	if height == 0 || int(height) >= len(c.canonical) {
		return hash.Hash{}, errors.Wrap(rpc.ErrNotFound, "getblockhash")
	}
	return c.canonical[height], nil
}

func (c *fakeChain) GetBlock(ctx context.Context, h hash.Hash) (*types.Block, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.enter(ctx, "getblock"); err != nil {
		return nil, err
	}
	b, ok := c.blocks[h]
	if !ok {
		return nil, errors.Wrap(rpc.ErrNotFound, "getblock")
	}
	out := *b
	out.Transactions = append([]hash.Hash(nil), b.Transactions...)
	return &out, nil
}

func (c *fakeChain) GetRawTransaction(ctx context.Context, h hash.Hash) (*types.Transaction, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.enter(ctx, "getrawtransaction"); err != nil {
		return nil, err
	}
	tx, ok := c.txs[h]
	if !ok {
		return nil, errors.Wrap(rpc.ErrNotFound, "getrawtransaction")
	}
	return tx, nil
}

// memStateRepository keeps the reader state in memory.
type memStateRepository struct {
	sync.Mutex
	state  *State
	stores int
}

func (r *memStateRepository) Fetch(ctx context.Context) (*State, error) {
	r.Lock()
	defer r.Unlock()
	return r.state, nil
}

func (r *memStateRepository) Store(ctx context.Context, s *State) error {
	r.Lock()
	defer r.Unlock()
	r.state = s
	r.stores++
	return nil
}

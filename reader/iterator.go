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
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

// BlockSource is the part of the chain node the iterator reads.
type BlockSource interface {
	GetBlockCount(ctx context.Context) (uint32, error)
	GetBlockHash(ctx context.Context, height uint32) (hash.Hash, error)
	GetBlock(ctx context.Context, h hash.Hash) (*types.Block, error)
	GetRawTransaction(ctx context.Context, h hash.Hash) (*types.Transaction, error)
}

// BlockIterator yields the headers of every block from a start height, one block at a time.
// A block is consumed only once all its transactions were fetched, so a failure never
// skips or duplicates a header.
type BlockIterator struct {
	source  BlockSource
	height  uint32
	pending []*Header
}

// NewBlockIterator returns an iterator starting at height.
func NewBlockIterator(source BlockSource, height uint32) *BlockIterator {
	return &BlockIterator{source: source, height: height}
}

// Height returns the next block height to fetch.
func (it *BlockIterator) Height() uint32 {
	return atomic.LoadUint32(&it.height)
}

// Reset rewinds or forwards the iterator to height and drops buffered headers.
func (it *BlockIterator) Reset(height uint32) {
	it.pending = nil
	atomic.StoreUint32(&it.height, height)
}

// Next implements HeaderIterator.
func (it *BlockIterator) Next(ctx context.Context) (h *Header, done bool, err error) {
	if len(it.pending) == 0 {
		if done, err = it.fetch(ctx); err != nil || done {
			return
		}
	}
	h, it.pending = it.pending[0], it.pending[1:]
	return
}

func (it *BlockIterator) fetch(ctx context.Context) (done bool, err error) {
	height := it.Height()
	tip, err := it.source.GetBlockCount(ctx)
	if err != nil {
		err = errors.Wrap(err, "get block count failed")
		return
	}
	if height > tip {
		return true, nil
	}

	blockHash, err := it.source.GetBlockHash(ctx, height)
	if errors.Is(err, rpc.ErrNotFound) {
		// The chain shrank after the count was read.
		return true, nil
	}
	if err != nil {
		err = errors.Wrapf(err, "get block hash at %d failed", height)
		return
	}
	block, err := it.source.GetBlock(ctx, blockHash)
	if errors.Is(err, rpc.ErrNotFound) {
		err = types.AsTransient(errors.Wrapf(err, "block %s vanished", blockHash.Short(4)))
		return
	}
	if err != nil {
		err = errors.Wrapf(err, "get block %s failed", blockHash.Short(4))
		return
	}

	var headers []*Header
	for _, txID := range block.Transactions {
		var tx *types.Transaction
		if tx, err = it.source.GetRawTransaction(ctx, txID); err != nil {
			err = errors.Wrapf(err, "get transaction %s failed", txID.Short(4))
			return
		}
		st, serr := tx.StateTransition()
		if serr == types.ErrNotStateTransition {
			continue
		}
		if serr != nil {
			err = errors.Wrap(ErrMalformedHeader, serr.Error())
			return
		}
		headers = append(headers, &Header{
			Height:            height,
			BlockHash:         blockHash,
			PreviousBlockHash: block.PreviousBlockHash,
			Transition:        st,
		})
	}
	if len(headers) == 0 {
		headers = append(headers, &Header{
			Height:            height,
			BlockHash:         blockHash,
			PreviousBlockHash: block.PreviousBlockHash,
		})
	}

	log.WithFields(log.Fields{
		"height":      height,
		"block_hash":  blockHash.Short(4),
		"transitions": len(headers),
	}).Debug("reader: block fetched")

	it.pending = headers
	atomic.StoreUint32(&it.height, height+1)
	return
}

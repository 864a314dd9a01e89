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
	"time"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils/log"
)

// ChainLockClient queries the node for its best chain lock.
type ChainLockClient interface {
	GetBestChainLock(ctx context.Context) (*types.ChainLock, error)
}

// ChainLockFeed pushes chain locks as the node observes them.
type ChainLockFeed interface {
	OnChainLock(fn func(*types.ChainLock)) (cancel func())
}

// BlockClient looks blocks up by hash.
type BlockClient interface {
	GetBlock(ctx context.Context, h hash.Hash) (*types.Block, error)
}

// BlockFeed pushes hashes of new blocks.
type BlockFeed interface {
	OnBlock(fn func(hash.Hash)) (cancel func())
}

// SyncStatusClient reports the sync progress of the node.
type SyncStatusClient interface {
	GetBlockchainInfo(ctx context.Context) (*rpc.BlockchainInfo, error)
	GetPeerInfo(ctx context.Context) ([]rpc.PeerInfo, error)
	GetMnSyncStatus(ctx context.Context) (*rpc.MnSyncStatus, error)
}

// WaitForChainLockSync routes the feed into tracker and returns once tracker holds a chain
// lock: the node's best one, or the first one pushed when the node has none yet.
// The returned cancel function stops the feed routing.
func WaitForChainLockSync(ctx context.Context, client ChainLockClient, feed ChainLockFeed,
	tracker *ChainLockTracker) (cancel func(), err error) {
	first := make(chan struct{})
	var once sync.Once
	unsubscribe := tracker.Subscribe(func(types.ChainLock) {
		once.Do(func() { close(first) })
	})
	defer unsubscribe()

	cancel = feed.OnChainLock(func(lock *types.ChainLock) {
		tracker.Update(lock)
	})

	lock, err := client.GetBestChainLock(ctx)
	switch {
	case err == nil:
		tracker.Update(lock)
		return
	case errors.Is(err, rpc.ErrNotFound):
		log.Info("core: no chain lock yet, waiting for the first one")
	default:
		cancel()
		return nil, errors.Wrap(err, "get best chain lock failed")
	}

	if _, ok := tracker.ChainLock(); ok {
		return cancel, nil
	}
	select {
	case <-first:
		return cancel, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// CheckSyncFinished returns once the node finished blockchain sync, reporting
// (blocks, headers) to progress on every poll. A regtest node without peers is never
// going to sync and is accepted as is.
func CheckSyncFinished(ctx context.Context, client SyncStatusClient, interval time.Duration,
	progress func(blocks, headers uint32)) (err error) {
	info, err := client.GetBlockchainInfo(ctx)
	if err != nil {
		return errors.Wrap(err, "get blockchain info failed")
	}
	peers, err := client.GetPeerInfo(ctx)
	if err != nil {
		return errors.Wrap(err, "get peer info failed")
	}
	if info.Chain == "regtest" && len(peers) == 0 {
		return nil
	}

	for {
		status, err := client.GetMnSyncStatus(ctx)
		if err != nil {
			return errors.Wrap(err, "get mnsync status failed")
		}
		if status.IsBlockchainSynced {
			return nil
		}

		if info, err = client.GetBlockchainInfo(ctx); err != nil {
			return errors.Wrap(err, "get blockchain info failed")
		}
		if progress != nil {
			progress(info.Blocks, info.Headers)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// EnsureBlock returns once the node knows block h, waiting for its announcement when the
// node does not have it yet.
func EnsureBlock(ctx context.Context, client BlockClient, feed BlockFeed, h hash.Hash) (err error) {
	seen := make(chan struct{})
	var once sync.Once
	cancel := feed.OnBlock(func(got hash.Hash) {
		if got == h {
			once.Do(func() { close(seen) })
		}
	})
	defer cancel()

	if _, err = client.GetBlock(ctx, h); err == nil {
		return
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return errors.Wrapf(err, "get block %s failed", h.Short(4))
	}

	log.WithField("block_hash", h.Short(4)).Debug("core: waiting for block announcement")
	select {
	case <-seen:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

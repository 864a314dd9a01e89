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

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/types"
)

type fakeFeed struct {
	sync.Mutex
	locks  []func(*types.ChainLock)
	blocks []func(hash.Hash)
}

func (f *fakeFeed) OnChainLock(fn func(*types.ChainLock)) func() {
	f.Lock()
	defer f.Unlock()
	f.locks = append(f.locks, fn)
	return func() {
		f.Lock()
		defer f.Unlock()
		f.locks = nil
	}
}

func (f *fakeFeed) OnBlock(fn func(hash.Hash)) func() {
	f.Lock()
	defer f.Unlock()
	f.blocks = append(f.blocks, fn)
	return func() {
		f.Lock()
		defer f.Unlock()
		f.blocks = nil
	}
}

func (f *fakeFeed) pushLock(l *types.ChainLock) {
	f.Lock()
	fns := append([]func(*types.ChainLock){}, f.locks...)
	f.Unlock()
	for _, fn := range fns {
		fn(l)
	}
}

func (f *fakeFeed) pushBlock(h hash.Hash) {
	f.Lock()
	fns := append([]func(hash.Hash){}, f.blocks...)
	f.Unlock()
	for _, fn := range fns {
		fn(h)
	}
}

type fakeNode struct {
	bestLock *types.ChainLock
	lockErr  error
	blockErr error

	chain   string
	peers   int
	synced  []bool
	polls   int
	blocks  uint32
	headers uint32
}

func (n *fakeNode) GetBestChainLock(ctx context.Context) (*types.ChainLock, error) {
	return n.bestLock, n.lockErr
}

func (n *fakeNode) GetBlock(ctx context.Context, h hash.Hash) (*types.Block, error) {
	if n.blockErr != nil {
		return nil, n.blockErr
	}
	return &types.Block{Hash: h}, nil
}

func (n *fakeNode) GetBlockchainInfo(ctx context.Context) (*rpc.BlockchainInfo, error) {
	return &rpc.BlockchainInfo{Chain: n.chain, Blocks: n.blocks, Headers: n.headers}, nil
}

func (n *fakeNode) GetPeerInfo(ctx context.Context) ([]rpc.PeerInfo, error) {
	return make([]rpc.PeerInfo, n.peers), nil
}

func (n *fakeNode) GetMnSyncStatus(ctx context.Context) (*rpc.MnSyncStatus, error) {
	synced := n.synced[n.polls]
	n.polls++
	n.blocks++
	return &rpc.MnSyncStatus{IsBlockchainSynced: synced}, nil
}

var notFound = errors.Wrap(rpc.ErrNotFound, "getbestchainlock: Chainlock not found")

func TestWaitForChainLockSync(t *testing.T) {
	lock := &types.ChainLock{
		Height:    84202,
		BlockHash: hash.HashH([]byte("84202")),
		Signature: "0a43f1c3",
	}

	Convey("best chain lock from the node seeds the tracker", t, func() {
		tracker := NewChainLockTracker()
		feed := &fakeFeed{}
		cancel, err := WaitForChainLockSync(context.Background(), &fakeNode{bestLock: lock}, feed, tracker)
		So(err, ShouldBeNil)
		defer cancel()
		got, ok := tracker.ChainLock()
		So(ok, ShouldBeTrue)
		So(got, ShouldResemble, *lock)

		feed.pushLock(&types.ChainLock{Height: 84203})
		got, _ = tracker.ChainLock()
		So(got.Height, ShouldEqual, 84203)
	})

	Convey("without a best chain lock the first pushed one is awaited", t, func() {
		tracker := NewChainLockTracker()
		feed := &fakeFeed{}
		go func() {
			time.Sleep(10 * time.Millisecond)
			feed.pushLock(lock)
		}()
		cancel, err := WaitForChainLockSync(context.Background(), &fakeNode{lockErr: notFound}, feed, tracker)
		So(err, ShouldBeNil)
		defer cancel()
		got, ok := tracker.ChainLock()
		So(ok, ShouldBeTrue)
		So(got, ShouldResemble, *lock)
	})

	Convey("other node errors abort", t, func() {
		boom := errors.New("boom")
		feed := &fakeFeed{}
		_, err := WaitForChainLockSync(context.Background(), &fakeNode{lockErr: boom}, feed, NewChainLockTracker())
		So(errors.Is(err, boom), ShouldBeTrue)
		So(feed.locks, ShouldBeEmpty)
	})

	Convey("waiting honours cancellation", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := WaitForChainLockSync(ctx, &fakeNode{lockErr: notFound}, &fakeFeed{}, NewChainLockTracker())
		So(err, ShouldEqual, context.DeadlineExceeded)
	})
}

func TestCheckSyncFinished(t *testing.T) {
	Convey("regtest without peers is accepted", t, func() {
		node := &fakeNode{chain: "regtest"}
		So(CheckSyncFinished(context.Background(), node, time.Millisecond, nil), ShouldBeNil)
		So(node.polls, ShouldEqual, 0)
	})

	Convey("polls until blockchain is synced and reports progress", t, func() {
		node := &fakeNode{chain: "testnet", peers: 3, synced: []bool{false, false, true}, headers: 100}
		var reported [][2]uint32
		err := CheckSyncFinished(context.Background(), node, time.Millisecond, func(blocks, headers uint32) {
			reported = append(reported, [2]uint32{blocks, headers})
		})
		So(err, ShouldBeNil)
		So(node.polls, ShouldEqual, 3)
		So(reported, ShouldResemble, [][2]uint32{{1, 100}, {2, 100}})
	})
}

func TestEnsureBlock(t *testing.T) {
	target := hash.HashH([]byte("00000"))

	Convey("existing block returns at once", t, func() {
		So(EnsureBlock(context.Background(), &fakeNode{}, &fakeFeed{}, target), ShouldBeNil)
	})

	Convey("missing block is awaited on the feed", t, func() {
		feed := &fakeFeed{}
		node := &fakeNode{blockErr: errors.Wrap(rpc.ErrNotFound, "Block not found")}
		go func() {
			time.Sleep(5 * time.Millisecond)
			feed.pushBlock(hash.HashH([]byte("00001")))
			time.Sleep(5 * time.Millisecond)
			feed.pushBlock(target)
		}()
		So(EnsureBlock(context.Background(), node, feed, target), ShouldBeNil)
	})

	Convey("unexpected errors propagate", t, func() {
		boom := errors.New("Another error")
		err := EnsureBlock(context.Background(), &fakeNode{blockErr: boom}, &fakeFeed{}, target)
		So(errors.Is(err, boom), ShouldBeTrue)
	})
}

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

package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dashevo/drive/api"
	"github.com/dashevo/drive/conf"
	"github.com/dashevo/drive/core"
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/featureflag"
	"github.com/dashevo/drive/metric"
	"github.com/dashevo/drive/packet"
	"github.com/dashevo/drive/reader"
	"github.com/dashevo/drive/rpc"
	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/storage"
	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils"
	"github.com/dashevo/drive/utils/log"
)

const readerStateTable = "reader_state"

// run wires the node and blocks until ctx is done or a component fails.
func run(ctx context.Context, cfg *conf.Config) (err error) {
	if err = utils.EnsureDir(cfg.WorkingRoot); err != nil {
		return errors.Wrap(err, "create working root failed")
	}

	client, err := rpc.Dial(ctx, cfg.Core.URL, nil)
	if err != nil {
		return errors.Wrap(err, "connect to core failed")
	}
	defer client.Close()

	if !cfg.Core.SkipSyncCheck {
		if err = core.CheckSyncFinished(ctx, client, cfg.Core.SyncCheckInterval, func(blocks, headers uint32) {
			log.WithFields(log.Fields{"blocks": blocks, "headers": headers}).Info("waiting for core to finish sync")
		}); err != nil {
			return errors.Wrap(err, "wait for core sync failed")
		}
	}

	db, err := storage.NewSqlite(cfg.Storage.DatabaseFile)
	if err != nil {
		return
	}
	defer db.Close()

	kv, err := storage.OpenKV(ctx, db, readerStateTable)
	if err != nil {
		return
	}

	var remote packet.Remote
	if cfg.Gateway.URL != "" {
		remote = packet.NewGateway(packet.GatewayConfig{
			URL:        cfg.Gateway.URL,
			Timeout:    cfg.Gateway.Timeout,
			RetryBase:  cfg.Gateway.RetryBase,
			RetryMax:   cfg.Gateway.RetryMax,
			MaxRetries: cfg.Gateway.MaxRetries,
		})
	}
	packets, err := packet.NewLevelDBStore(cfg.Storage.PacketDir, cfg.Storage.PacketCacheSize, remote)
	if err != nil {
		return
	}
	defer packets.Close()

	repo, err := stateview.NewRepository(ctx, db)
	if err != nil {
		return
	}
	engine := stateview.NewEngine(repo, packets, client)

	mediator := reader.NewMediator(reader.Config{
		StartHeight:    cfg.Reader.StartHeight,
		RetainedBlocks: cfg.Reader.RetainedBlocks,
		PollInterval:   cfg.Reader.PollInterval,
		RetryBase:      cfg.Reader.RetryBase,
		RetryMax:       cfg.Reader.RetryMax,
		MaxRetries:     cfg.Reader.MaxRetries,
	}, reader.NewBlockIterator(client, cfg.Reader.StartHeight), client, reader.NewKVStateRepository(kv))

	// packets must be local before the engine applies their transition
	if remote != nil {
		packet.AttachStorageHandlers(mediator, packets)
	}
	stateview.AttachStateViewHandlers(mediator, engine)

	if err = mediator.Init(ctx); err != nil {
		return errors.Wrap(err, "init reader failed")
	}
	stopBlocks := client.OnBlock(func(h hash.Hash) {
		log.WithField("block", h.Short(4)).Debug("new block announced")
		mediator.Notify()
	})
	defer stopBlocks()

	tracker := core.NewChainLockTracker()
	stopLocks, err := core.WaitForChainLockSync(ctx, client, client, tracker)
	if err != nil {
		return errors.Wrap(err, "chain lock sync failed")
	}
	defer stopLocks()
	if lock, ok := tracker.ChainLock(); ok {
		// a chain lock may arrive before its block
		if err = core.EnsureBlock(ctx, client, client, lock.BlockHash); err != nil {
			return errors.Wrap(err, "wait for chain locked block failed")
		}
	}
	stopLockLog := tracker.Subscribe(func(lock types.ChainLock) {
		log.WithFields(log.Fields{
			"height": lock.Height,
			"block":  lock.BlockHash.Short(4),
		}).Debug("chain locked")
	})
	defer stopLockLog()

	metric.Registry.MustRegister(metric.NewStateCollector(mediator))

	svc := api.NewService(cfg.API.ListenAddr, repo, tracker, core.NewFinalityGate(tracker))
	svc.WaitTimeout = cfg.API.WaitTimeout
	if cfg.FeatureFlagsContractID != "" {
		svc.WithFeatureFlags(featureflag.NewGetter(cfg.FeatureFlagsContractID, repo))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mediator.Run(gctx)
	})
	g.Go(func() error {
		return svc.Serve(gctx)
	})
	g.Go(func() error {
		metric.SampleRuntime(gctx, sampleInterval(cfg.API.RuntimeSampleInterval))
		return nil
	})
	g.Go(func() error {
		select {
		case <-client.DisconnectNotify():
			return errors.New("core connection lost")
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	return
}

func sampleInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

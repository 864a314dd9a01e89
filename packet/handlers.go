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

package packet

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/reader"
	"github.com/dashevo/drive/types"
)

// AttachStorageHandlers pins the packets of applied transitions, unpins those of orphaned
// ones, and drops every packet on RESET.
func AttachStorageHandlers(bus chainbus.ChainSuber, store Store) {
	bus.Subscribe(reader.TopicStateTransition, func(ctx context.Context, ev chainbus.Event) error {
		return withCID(ev.(*reader.StateTransitionEvent).StateTransition, func(c cid.Cid) error {
			return store.Download(ctx, c)
		})
	})
	bus.Subscribe(reader.TopicStateTransitionOrphaned, func(ctx context.Context, ev chainbus.Event) error {
		return withCID(ev.(*reader.StateTransitionOrphanedEvent).StateTransition, func(c cid.Cid) error {
			return store.Delete(ctx, c)
		})
	})
	bus.Subscribe(reader.TopicReset, func(ctx context.Context, ev chainbus.Event) error {
		return store.DeleteAll(ctx)
	})
}

func withCID(st *types.StateTransitionHeader, fn func(c cid.Cid) error) error {
	c, err := st.PacketCID()
	if err != nil {
		return err
	}
	return fn(c)
}

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

	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/reader"
)

// AttachStateViewHandlers makes e follow the chain events published on bus.
func AttachStateViewHandlers(bus chainbus.ChainSuber, e *Engine) {
	bus.Subscribe(reader.TopicStateTransition, func(ctx context.Context, ev chainbus.Event) error {
		st := ev.(*reader.StateTransitionEvent)
		return e.ApplyStateTransition(ctx, st.StateTransition, st.Block)
	})
	bus.Subscribe(reader.TopicStateTransitionOrphaned, func(ctx context.Context, ev chainbus.Event) error {
		st := ev.(*reader.StateTransitionOrphanedEvent)
		return e.RevertStateTransition(ctx, st.StateTransition, st.Block)
	})
	bus.Subscribe(reader.TopicReset, func(ctx context.Context, ev chainbus.Event) error {
		return e.Reset(ctx)
	})
}

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
	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/types"
)

const (
	// TopicStateTransition is published for every state transition of an accepted block.
	TopicStateTransition chainbus.Topic = "STATE_TRANSITION"
	// TopicStateTransitionOrphaned is published for every state transition of a block
	// abandoned by a reorganization, newest first.
	TopicStateTransitionOrphaned chainbus.Topic = "STATE_TRANSITION_ORPHANED"
	// TopicReset is published when a reorganization is deeper than the retained window.
	// Subscribers must discard all derived state.
	TopicReset chainbus.Topic = "RESET"
)

// StateTransitionEvent carries a state transition and its block.
type StateTransitionEvent struct {
	StateTransition *types.StateTransitionHeader
	Block           *types.Block
}

// Topic implements chainbus.Event.
func (e *StateTransitionEvent) Topic() chainbus.Topic { return TopicStateTransition }

// StateTransitionOrphanedEvent carries an orphaned state transition and its block.
type StateTransitionOrphanedEvent struct {
	StateTransition *types.StateTransitionHeader
	Block           *types.Block
}

// Topic implements chainbus.Event.
func (e *StateTransitionOrphanedEvent) Topic() chainbus.Topic { return TopicStateTransitionOrphaned }

// ResetEvent asks subscribers to drop everything derived from the chain.
type ResetEvent struct{}

// Topic implements chainbus.Event.
func (e *ResetEvent) Topic() chainbus.Topic { return TopicReset }

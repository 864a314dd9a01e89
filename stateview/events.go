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
	"github.com/dashevo/drive/chainbus"
	"github.com/dashevo/drive/types"
)

const (
	// TopicEntityUpdated is published for every record changed by an applied transition.
	TopicEntityUpdated chainbus.Topic = "ENTITY_UPDATED"
	// TopicEntityReverted is published for every record restored by an orphaned transition.
	TopicEntityReverted chainbus.Topic = "ENTITY_REVERTED"
	// TopicEntityMarkedDeleted is published for every record left without a version to restore.
	TopicEntityMarkedDeleted chainbus.Topic = "ENTITY_MARKED_DELETED"
)

// EntityUpdatedEvent carries a snapshot of the record after an apply.
type EntityUpdatedEvent struct {
	Record *Record
}

// Topic implements chainbus.Event.
func (e *EntityUpdatedEvent) Topic() chainbus.Topic { return TopicEntityUpdated }

// EntityRevertedEvent carries a snapshot of the restored record and the revision now on
// top of its undo stack, if any.
type EntityRevertedEvent struct {
	Record           *Record
	PreviousRevision *types.Revision
}

// Topic implements chainbus.Event.
func (e *EntityRevertedEvent) Topic() chainbus.Topic { return TopicEntityReverted }

// EntityMarkedDeletedEvent carries a snapshot of a record deleted by a revert.
type EntityMarkedDeletedEvent struct {
	Record *Record
}

// Topic implements chainbus.Event.
func (e *EntityMarkedDeletedEvent) Topic() chainbus.Topic { return TopicEntityMarkedDeleted }

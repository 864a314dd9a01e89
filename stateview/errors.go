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
	"github.com/pkg/errors"

	"github.com/dashevo/drive/types"
)

var (
	// ErrPacketUnavailable indicates a packet the store could not deliver.
	ErrPacketUnavailable = errors.New("packet unavailable")
	// ErrDuplicateEntity indicates a CREATE for an entity that already has a record.
	ErrDuplicateEntity = types.NewProtocolError("duplicate entity")
	// ErrRecordNotFound indicates an UPDATE or DELETE of an unknown entity.
	ErrRecordNotFound = types.NewProtocolError("record not found")
	// ErrRevisionOutOfOrder indicates an UPDATE whose revision does not follow the current one.
	ErrRevisionOutOfOrder = types.NewProtocolError("revision out of order")
	// ErrEntityDeleted indicates an UPDATE or DELETE of a deleted entity.
	ErrEntityDeleted = types.NewProtocolError("entity is deleted")
	// ErrRevisionUnrecoverable indicates a previous revision missing from its packet.
	ErrRevisionUnrecoverable = types.NewProtocolError("previous revision cannot be recovered")
	// ErrInvalidQuery indicates a malformed fetch query.
	ErrInvalidQuery = errors.New("invalid query")
)

type packetError struct {
	packet string
	cause  error
}

func (e *packetError) Error() string {
	return "packet " + e.packet + " unavailable: " + e.cause.Error()
}

func (e *packetError) Is(target error) bool { return target == ErrPacketUnavailable }

func (e *packetError) Unwrap() error { return e.cause }

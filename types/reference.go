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

// Package types defines the values shared by the reader, the revision engine and the
// chain lock tracker: blocks and their state transitions, packets of documents, and the
// references and revisions that locate where each document version came from.
package types

import (
	"fmt"

	"github.com/dashevo/drive/crypto/hash"
)

// Reference locates the block, state transition, packet and entity that introduced one
// version of a document. It is a value type and is never mutated after construction.
type Reference struct {
	BlockHash      hash.Hash
	BlockHeight    uint32
	TransitionHash hash.Hash
	PacketHash     hash.Hash
	EntityHash     hash.Hash
}

// NewReference builds the reference of entityHash carried by header in block.
func NewReference(block *Block, header *StateTransitionHeader, entityHash hash.Hash) Reference {
	return Reference{
		BlockHash:      block.Hash,
		BlockHeight:    block.Height,
		TransitionHash: header.Hash,
		PacketHash:     header.PacketHash,
		EntityHash:     entityHash,
	}
}

// IsZero reports whether r is the empty reference.
func (r Reference) IsZero() bool {
	return r == Reference{}
}

func (r Reference) String() string {
	return fmt.Sprintf("%d/%s/%s/%s",
		r.BlockHeight, r.BlockHash.Short(4), r.TransitionHash.Short(4), r.EntityHash.Short(4))
}

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

// Package reader walks the consensus chain, detects reorganizations and dispatches ordered,
// awaited chain events to the state view.
package reader

import (
	"context"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/types"
)

// Header is one step of the chain walk: a state transition in a block, or a block marker
// for a block without state transitions.
type Header struct {
	Height            uint32
	BlockHash         hash.Hash
	PreviousBlockHash hash.Hash
	Transition        *types.StateTransitionHeader
}

// IsMarker reports whether h stands for a block without state transitions.
func (h *Header) IsMarker() bool {
	return h.Transition == nil
}

// Validate checks the header identity fields.
func (h *Header) Validate() error {
	if h.BlockHash.IsZero() {
		return ErrMalformedHeader
	}
	if h.Transition != nil && (h.Transition.Hash.IsZero() || h.Transition.PacketHash.IsZero()) {
		return ErrMalformedHeader
	}
	return nil
}

// HeaderIterator is a restartable, ordered producer of headers.
//
// Next returns done at the chain tip and resumes from the same position on a later call.
// It never retries internally.
type HeaderIterator interface {
	Next(ctx context.Context) (h *Header, done bool, err error)
	Reset(height uint32)
	Height() uint32
}

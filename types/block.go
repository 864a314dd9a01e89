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

package types

import (
	"github.com/ipfs/go-cid"

	"github.com/dashevo/drive/crypto/hash"
)

// StateTransitionType is the special transaction type carrying a state transition.
const StateTransitionType = 12

// Block is a consensus chain block as seen by the reader.
type Block struct {
	Height            uint32      `json:"height"`
	Hash              hash.Hash   `json:"hash"`
	PreviousBlockHash hash.Hash   `json:"previousblockhash"`
	Transactions      []hash.Hash `json:"tx"`
}

// StateTransitionHeader is the on-chain part of a state transition: it commits to a packet
// and names the identity that submitted it.
type StateTransitionHeader struct {
	Hash       hash.Hash
	PacketHash hash.Hash
	OwnerID    string
}

// PacketCID returns the content identifier of the packet committed by h.
func (h *StateTransitionHeader) PacketCID() (cid.Cid, error) {
	return PacketCID(h.PacketHash)
}

// StateTransitionPayload is the special transaction payload of a state transition.
type StateTransitionPayload struct {
	RegTxID    string    `json:"regTxId"`
	PacketHash hash.Hash `json:"hashSTPacket"`
}

// Transaction is a decoded consensus chain transaction.
type Transaction struct {
	TxID         hash.Hash               `json:"txid"`
	Type         int                     `json:"type"`
	ExtraPayload *StateTransitionPayload `json:"extraPayload,omitempty"`
}

// StateTransition returns the state transition header carried by tx.
func (tx *Transaction) StateTransition() (h *StateTransitionHeader, err error) {
	if tx.Type != StateTransitionType {
		err = ErrNotStateTransition
		return
	}
	if tx.ExtraPayload == nil || tx.ExtraPayload.PacketHash.IsZero() {
		err = ErrMalformedTransition
		return
	}
	h = &StateTransitionHeader{
		Hash:       tx.TxID,
		PacketHash: tx.ExtraPayload.PacketHash,
		OwnerID:    tx.ExtraPayload.RegTxID,
	}
	return
}

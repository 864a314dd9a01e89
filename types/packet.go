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
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
)

// Packet is a content-addressed bundle of documents produced by one state transition.
type Packet struct {
	ContractID string      `cbor:"contractId" json:"contractId"`
	Contract   *Document   `cbor:"contract,omitempty" json:"contract,omitempty"`
	Documents  []*Document `cbor:"documents" json:"documents"`
}

// Encode returns the canonical CBOR bytes of p.
func (p *Packet) Encode() ([]byte, error) {
	b, err := canonicalEncMode.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode packet failed")
	}
	return b, nil
}

// DecodePacket parses canonical packet bytes.
func DecodePacket(b []byte) (p *Packet, err error) {
	p = &Packet{}
	if err = packetDecMode.Unmarshal(b, p); err != nil {
		err = errors.Wrap(err, "decode packet failed")
		return nil, err
	}
	return
}

// Hash returns the SHA-256d digest of the canonical packet bytes.
func (p *Packet) Hash() (h hash.Hash, err error) {
	b, err := p.Encode()
	if err != nil {
		return
	}
	return hash.DoubleHashH(b), nil
}

// CID returns the content identifier of p.
func (p *Packet) CID() (c cid.Cid, err error) {
	h, err := p.Hash()
	if err != nil {
		return
	}
	return PacketCID(h)
}

// Entities returns the contract document, when present, followed by the documents.
func (p *Packet) Entities() []*Document {
	out := make([]*Document, 0, len(p.Documents)+1)
	if p.Contract != nil {
		out = append(out, p.Contract)
	}
	return append(out, p.Documents...)
}

// FindDocument returns the entity of p with the given id. A non-zero entityHash must also match.
func (p *Packet) FindDocument(id string, entityHash hash.Hash) (*Document, error) {
	for _, d := range p.Entities() {
		if d.ID != id {
			continue
		}
		if !entityHash.IsZero() {
			h, err := d.Hash()
			if err != nil {
				return nil, err
			}
			if h != entityHash {
				continue
			}
		}
		return d, nil
	}
	return nil, errors.Errorf("document %s not found in packet", id)
}

// PacketCID builds the CIDv1 (dag-cbor, dbl-sha2-256) addressing a packet with digest h.
func PacketCID(h hash.Hash) (c cid.Cid, err error) {
	digest, err := mh.Encode(h[:], mh.DBL_SHA2_256)
	if err != nil {
		err = errors.Wrap(err, "encode multihash failed")
		return
	}
	return cid.NewCidV1(cid.DagCBOR, digest), nil
}

// PacketHashFromCID extracts the packet digest addressed by c.
func PacketHashFromCID(c cid.Cid) (h hash.Hash, err error) {
	if !c.Defined() || c.Type() != cid.DagCBOR {
		err = ErrInvalidPacketCID
		return
	}
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		err = errors.Wrap(ErrInvalidPacketCID, err.Error())
		return
	}
	if decoded.Code != mh.DBL_SHA2_256 || len(decoded.Digest) != hash.HashSize {
		err = ErrInvalidPacketCID
		return
	}
	copy(h[:], decoded.Digest)
	return
}

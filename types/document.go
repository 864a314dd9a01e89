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
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/crypto/hash"
)

// ContractType is the document type of the contract carried by a packet.
const ContractType = "$contract"

// Action is the mutation a document applies to its record.
type Action uint8

const (
	// ActionCreate creates a new record.
	ActionCreate Action = iota + 1
	// ActionUpdate replaces the current version of a record.
	ActionUpdate
	// ActionDelete marks a record deleted.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if a < ActionCreate || a > ActionDelete {
		return nil, ErrInvalidAction
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "CREATE":
		*a = ActionCreate
	case "UPDATE":
		*a = ActionUpdate
	case "DELETE":
		*a = ActionDelete
	default:
		return ErrInvalidAction
	}
	return nil
}

// Document is an application entity carried by a packet.
type Document struct {
	ID       string                 `cbor:"id" json:"id"`
	Type     string                 `cbor:"type" json:"type"`
	Action   Action                 `cbor:"action" json:"action"`
	Revision uint32                 `cbor:"revision" json:"revision"`
	Data     map[string]interface{} `cbor:"data,omitempty" json:"data,omitempty"`
}

var (
	canonicalEncMode cbor.EncMode
	packetDecMode    cbor.DecMode
)

func init() {
	var err error
	if canonicalEncMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if packetDecMode, err = (cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}).DecMode(); err != nil {
		panic(err)
	}
}

// IsContract reports whether d is the contract document of its packet.
func (d *Document) IsContract() bool {
	return d.Type == ContractType
}

// Hash returns the SHA-256d digest of the canonical CBOR encoding of d.
func (d *Document) Hash() (h hash.Hash, err error) {
	enc, err := canonicalEncMode.Marshal(d)
	if err != nil {
		err = errors.Wrap(err, "encode document failed")
		return
	}
	return hash.DoubleHashH(enc), nil
}

// Clone returns a copy of d that shares no top-level map with it.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Data != nil {
		c.Data = make(map[string]interface{}, len(d.Data))
		for k, v := range d.Data {
			c.Data[k] = v
		}
	}
	return &c
}

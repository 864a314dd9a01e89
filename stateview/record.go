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

// Package stateview materializes documents carried by state transitions into queryable
// records, and keeps enough history in every record to undo one transition at a time.
package stateview

import (
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"

	"github.com/dashevo/drive/types"
	"github.com/dashevo/drive/utils"
)

// RecordKey identifies a record.
type RecordKey struct {
	ContainerID string
	Type        string
	ID          string
}

// Record is the materialized state of one document.
//
// Current.Revision is greater than every revision in PreviousRevisions, which is ordered
// oldest to newest and popped on revert.
type Record struct {
	ContainerID       string
	OwnerID           string
	Current           *types.Document
	Reference         types.Reference
	IsDeleted         bool
	DeletedReference  *types.Reference
	PreviousRevisions types.Revisions
}

// Key returns the identity of r.
func (r *Record) Key() RecordKey {
	return RecordKey{ContainerID: r.ContainerID, Type: r.Current.Type, ID: r.Current.ID}
}

// Revision returns the revision describing the current version of r.
func (r *Record) Revision() types.Revision {
	return types.Revision{Revision: r.Current.Revision, Reference: r.Reference}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return deepcopy.Copy(r).(*Record)
}

// Encode serializes r to its persisted form.
func (r *Record) Encode() ([]byte, error) {
	b, err := utils.EncodeMsgPack(r)
	if err != nil {
		return nil, errors.Wrap(err, "encode record failed")
	}
	return b, nil
}

// DecodeRecord parses a persisted record.
func DecodeRecord(b []byte) (r *Record, err error) {
	r = &Record{}
	if err = utils.DecodeMsgPack(b, r); err != nil {
		return nil, errors.Wrap(err, "decode record failed")
	}
	if r.Current == nil {
		return nil, errors.New("decode record failed: no current document")
	}
	return
}

// fields returns the queryable view of r: the document data plus its system fields.
func (r *Record) fields() map[string]interface{} {
	v := make(map[string]interface{}, len(r.Current.Data)+4)
	for k, x := range r.Current.Data {
		v[k] = x
	}
	v["$id"] = r.Current.ID
	v["$type"] = r.Current.Type
	v["$revision"] = r.Current.Revision
	v["$ownerId"] = r.OwnerID
	return v
}

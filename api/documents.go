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

package api

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/types"
)

// DocumentFetcher reads materialized records.
type DocumentFetcher interface {
	Get(ctx context.Context, key stateview.RecordKey) (*stateview.Record, error)
	Fetch(ctx context.Context, containerID, entityType string, q *stateview.Query) ([]*stateview.Record, error)
}

// DocumentMeta describes where the current revision of a document was committed.
type DocumentMeta struct {
	OwnerID        string    `json:"userId"`
	BlockHash      hash.Hash `json:"blockHash"`
	BlockHeight    uint32    `json:"blockHeight"`
	TransitionHash hash.Hash `json:"stHeaderHash"`
	PacketHash     hash.Hash `json:"stPacketHash"`
}

// DocumentView is the API form of a record.
type DocumentView struct {
	*types.Document
	Meta DocumentMeta `json:"$meta"`
}

func newDocumentView(rec *stateview.Record) *DocumentView {
	return &DocumentView{
		Document: rec.Current,
		Meta: DocumentMeta{
			OwnerID:        rec.OwnerID,
			BlockHash:      rec.Reference.BlockHash,
			BlockHeight:    rec.Reference.BlockHeight,
			TransitionHash: rec.Reference.TransitionHash,
			PacketHash:     rec.Reference.PacketHash,
		},
	}
}

type fetchDocumentsParams struct {
	ContractID string                 `json:"contractId" validate:"required"`
	Type       string                 `json:"type" validate:"required"`
	Options    map[string]interface{} `json:"options"`

	query *stateview.Query
}

func (params *fetchDocumentsParams) Validate() (err error) {
	params.query, err = stateview.ParseQuery(params.Options)
	return
}

func (s *Service) fetchDocuments(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	params := ctx.Value(paramsKey).(*fetchDocumentsParams)
	return s.findDocuments(ctx, params.ContractID, params.Type, params.query)
}

func (s *Service) findDocuments(ctx context.Context, contractID, entityType string, q *stateview.Query) (
	docs []*DocumentView, err error,
) {
	records, err := s.docs.Fetch(ctx, contractID, entityType, q)
	if err != nil {
		return
	}
	docs = make([]*DocumentView, 0, len(records))
	for _, rec := range records {
		docs = append(docs, newDocumentView(rec))
	}
	return
}

type fetchContractParams struct {
	ContractID string `json:"contractId" validate:"required"`
}

func (s *Service) fetchContract(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	params := ctx.Value(paramsKey).(*fetchContractParams)
	return s.findContract(ctx, params.ContractID)
}

// findContract returns nil when the contract is unknown or deleted.
func (s *Service) findContract(ctx context.Context, contractID string) (doc *DocumentView, err error) {
	rec, err := s.docs.Get(ctx, stateview.RecordKey{
		ContainerID: contractID,
		Type:        types.ContractType,
		ID:          contractID,
	})
	if err != nil || rec == nil || rec.IsDeleted {
		return
	}
	return newDocumentView(rec), nil
}

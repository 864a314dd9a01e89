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
	"context"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/storage"
	"github.com/dashevo/drive/utils"
)

const stateKey = "reader_state"

// State is the persisted position of the reader.
type State struct {
	Blocks []*BlockNode
}

// StateRepository persists the reader state.
type StateRepository interface {
	Fetch(ctx context.Context) (*State, error)
	Store(ctx context.Context, s *State) error
}

// KVStateRepository keeps the reader state in a sqlite key-value table.
type KVStateRepository struct {
	kv *storage.KV
}

// NewKVStateRepository returns a repository over kv.
func NewKVStateRepository(kv *storage.KV) *KVStateRepository {
	return &KVStateRepository{kv: kv}
}

// Fetch returns the stored state, or nil when nothing was stored yet.
func (r *KVStateRepository) Fetch(ctx context.Context) (s *State, err error) {
	raw, err := r.kv.Get(ctx, stateKey)
	if err != nil {
		err = errors.Wrap(err, "load reader state failed")
		return
	}
	if raw == nil {
		return
	}
	s = &State{}
	if err = utils.DecodeMsgPack(raw, s); err != nil {
		err = errors.Wrap(err, "decode reader state failed")
		return nil, err
	}
	return
}

// Store replaces the stored state.
func (r *KVStateRepository) Store(ctx context.Context, s *State) (err error) {
	b, err := utils.EncodeMsgPack(s)
	if err != nil {
		return errors.Wrap(err, "encode reader state failed")
	}
	if err = r.kv.Set(ctx, stateKey, b); err != nil {
		return errors.Wrap(err, "store reader state failed")
	}
	return
}

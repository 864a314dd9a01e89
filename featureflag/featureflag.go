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

// Package featureflag reads height-activated feature flags from the state view.
package featureflag

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dashevo/drive/stateview"
	"github.com/dashevo/drive/types"
)

// EnableAtHeightField is the data field holding the activation height of a flag.
const EnableAtHeightField = "enableAtHeight"

// Fetcher is the document query of the state view.
type Fetcher interface {
	Fetch(ctx context.Context, containerID, entityType string, q *stateview.Query) ([]*stateview.Record, error)
}

// Getter looks up flags in the documents of one contract.
type Getter struct {
	contractID string
	fetcher    Fetcher
}

// NewGetter returns a getter for the flags of contractID.
func NewGetter(contractID string, fetcher Fetcher) *Getter {
	return &Getter{contractID: contractID, fetcher: fetcher}
}

// ForHeight returns the flag document of flagType activated exactly at height, or nil.
func (g *Getter) ForHeight(ctx context.Context, flagType string, height uint32) (*types.Document, error) {
	records, err := g.fetcher.Fetch(ctx, g.contractID, flagType, &stateview.Query{
		Where: []stateview.Condition{{
			Field:    EnableAtHeightField,
			Operator: stateview.OpEqual,
			Value:    height,
		}},
		Limit: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s flag at %d failed", flagType, height)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].Current, nil
}

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

	"github.com/dashevo/drive/types"
)

// FlagGetter resolves height-activated feature flags.
type FlagGetter interface {
	ForHeight(ctx context.Context, flagType string, height uint32) (*types.Document, error)
}

// WithFeatureFlags exposes flags through the getFeatureFlag method.
func (s *Service) WithFeatureFlags(flags FlagGetter) *Service {
	s.flags = flags
	s.rpc.RegisterMethod("getFeatureFlag", s.getFeatureFlag, getFeatureFlagParams{})
	return s
}

type getFeatureFlagParams struct {
	Type   string `json:"type" validate:"required"`
	Height uint32 `json:"height"`
}

func (s *Service) getFeatureFlag(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	params := ctx.Value(paramsKey).(*getFeatureFlagParams)
	return s.flags.ForHeight(ctx, params.Type, params.Height)
}

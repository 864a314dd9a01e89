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

// ChainLockSource exposes the latest observed chain lock.
type ChainLockSource interface {
	ChainLock() (types.ChainLock, bool)
}

// HeightWaiter blocks until a height is finalized.
type HeightWaiter interface {
	WaitForChainLockedHeight(ctx context.Context, height uint32) error
}

func (s *Service) getChainLock(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	lock, ok := s.locks.ChainLock()
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

type waitForChainLockedHeightParams struct {
	Height uint32 `json:"height" validate:"gt=0"`
}

func (s *Service) waitForChainLockedHeight(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (
	result interface{}, err error,
) {
	params := ctx.Value(paramsKey).(*waitForChainLockedHeightParams)

	// the request dies with its connection
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.DisconnectNotify():
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.WaitTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.WaitTimeout)
		defer cancelTimeout()
	}

	if err = s.gate.WaitForChainLockedHeight(ctx, params.Height); err != nil {
		return
	}
	lock, _ := s.locks.ChainLock()
	return &lock, nil
}

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
	"github.com/dashevo/drive/crypto/hash"
)

// ChainLock is a threshold-signed finality proof for a block height.
type ChainLock struct {
	Height    uint32    `json:"height"`
	BlockHash hash.Hash `json:"blockhash"`
	Signature string    `json:"signature"`
}

// Covers reports whether the lock finalizes height.
func (c *ChainLock) Covers(height uint32) bool {
	return c != nil && c.Height >= height
}

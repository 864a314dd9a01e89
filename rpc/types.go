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

package rpc

// BlockchainInfo is the subset of getblockchaininfo used by the node.
type BlockchainInfo struct {
	Chain   string `json:"chain"`
	Blocks  uint32 `json:"blocks"`
	Headers uint32 `json:"headers"`
}

// PeerInfo is the subset of a getpeerinfo entry used by the node.
type PeerInfo struct {
	ID   int    `json:"id"`
	Addr string `json:"addr"`
}

// MnSyncStatus is the result of "mnsync status".
type MnSyncStatus struct {
	IsBlockchainSynced bool `json:"IsBlockchainSynced"`
	IsSynced           bool `json:"IsSynced"`
}

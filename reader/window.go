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
	"github.com/dashevo/drive/crypto/hash"
	"github.com/dashevo/drive/types"
)

// BlockNode is an accepted block and the state transitions emitted for it so far.
type BlockNode struct {
	Height            uint32
	Hash              hash.Hash
	PreviousBlockHash hash.Hash
	Transitions       []types.StateTransitionHeader
}

// Block returns the block identity carried by chain events.
func (n *BlockNode) Block() *types.Block {
	return &types.Block{
		Height:            n.Height,
		Hash:              n.Hash,
		PreviousBlockHash: n.PreviousBlockHash,
	}
}

func (n *BlockNode) hasTransition(h hash.Hash) bool {
	for i := range n.Transitions {
		if n.Transitions[i].Hash == h {
			return true
		}
	}
	return false
}

// chainWindow retains the newest accepted blocks, oldest first.
type chainWindow struct {
	limit int
	nodes []*BlockNode
}

func newChainWindow(limit int, nodes []*BlockNode) *chainWindow {
	w := &chainWindow{limit: limit, nodes: nodes}
	w.trim()
	return w
}

func (w *chainWindow) tip() *BlockNode {
	if len(w.nodes) == 0 {
		return nil
	}
	return w.nodes[len(w.nodes)-1]
}

func (w *chainWindow) push(n *BlockNode) {
	w.nodes = append(w.nodes, n)
	w.trim()
}

func (w *chainWindow) trim() {
	if w.limit > 0 && len(w.nodes) > w.limit {
		drop := len(w.nodes) - w.limit
		w.nodes = append([]*BlockNode(nil), w.nodes[drop:]...)
	}
}

// pop removes the tip.
func (w *chainWindow) pop() {
	if len(w.nodes) > 0 {
		w.nodes[len(w.nodes)-1] = nil
		w.nodes = w.nodes[:len(w.nodes)-1]
	}
}

// find returns the retained node with the block hash h.
func (w *chainWindow) find(h hash.Hash) *BlockNode {
	for i := len(w.nodes) - 1; i >= 0; i-- {
		if w.nodes[i].Hash == h {
			return w.nodes[i]
		}
	}
	return nil
}

// fetchNodeList returns the retained nodes above height, newest first.
func (w *chainWindow) fetchNodeList(height uint32) (bl []*BlockNode) {
	for i := len(w.nodes) - 1; i >= 0 && w.nodes[i].Height > height; i-- {
		bl = append(bl, w.nodes[i])
	}
	return
}

func (w *chainWindow) clear() {
	w.nodes = nil
}

func (w *chainWindow) len() int {
	return len(w.nodes)
}

func (w *chainWindow) snapshot() []*BlockNode {
	out := make([]*BlockNode, len(w.nodes))
	copy(out, w.nodes)
	return out
}

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

// Revision is one historical, numbered version of a document.
type Revision struct {
	Revision  uint32
	Reference Reference
}

// Revisions is the undo stack of a record, ordered oldest to newest.
type Revisions []Revision

// Push returns the stack with r on top. The revision number must exceed the current top.
func (rs Revisions) Push(r Revision) (Revisions, error) {
	if top, ok := rs.Top(); ok && r.Revision <= top.Revision {
		return rs, ErrRevisionNotIncreasing
	}
	out := make(Revisions, len(rs), len(rs)+1)
	copy(out, rs)
	return append(out, r), nil
}

// Pop returns the stack without its top and the removed revision.
func (rs Revisions) Pop() (rest Revisions, r Revision, ok bool) {
	if len(rs) == 0 {
		return rs, Revision{}, false
	}
	r = rs[len(rs)-1]
	rest = make(Revisions, len(rs)-1)
	copy(rest, rs[:len(rs)-1])
	return rest, r, true
}

// Top returns the newest revision.
func (rs Revisions) Top() (r Revision, ok bool) {
	if len(rs) == 0 {
		return
	}
	return rs[len(rs)-1], true
}

// Numbers lists the revision numbers from oldest to newest.
func (rs Revisions) Numbers() []uint32 {
	out := make([]uint32, len(rs))
	for i, r := range rs {
		out[i] = r.Revision
	}
	return out
}

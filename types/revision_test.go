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
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/dashevo/drive/crypto/hash"
)

func testReference(height uint32) Reference {
	return Reference{
		BlockHash:      hash.HashH([]byte{byte(height), 'b'}),
		BlockHeight:    height,
		TransitionHash: hash.HashH([]byte{byte(height), 't'}),
		PacketHash:     hash.HashH([]byte{byte(height), 'p'}),
		EntityHash:     hash.HashH([]byte{byte(height), 'e'}),
	}
}

func TestRevisions(t *testing.T) {
	Convey("undo stack keeps strictly increasing revisions", t, func() {
		var (
			rs  Revisions
			err error
		)
		_, ok := rs.Top()
		So(ok, ShouldBeFalse)

		for i := uint32(0); i < 3; i++ {
			rs, err = rs.Push(Revision{Revision: i, Reference: testReference(i + 1)})
			So(err, ShouldBeNil)
		}
		So(rs.Numbers(), ShouldResemble, []uint32{0, 1, 2})

		_, err = rs.Push(Revision{Revision: 2})
		So(err, ShouldEqual, ErrRevisionNotIncreasing)
		So(IsProtocolViolation(err), ShouldBeTrue)
		So(rs, ShouldHaveLength, 3)

		Convey("pop removes exactly the newest revision", func() {
			rest, top, ok := rs.Pop()
			So(ok, ShouldBeTrue)
			So(top.Revision, ShouldEqual, 2)
			So(top.Reference, ShouldResemble, testReference(3))
			So(rest.Numbers(), ShouldResemble, []uint32{0, 1})
			So(rs.Numbers(), ShouldResemble, []uint32{0, 1, 2})

			next, ok := rest.Top()
			So(ok, ShouldBeTrue)
			So(next.Revision, ShouldEqual, 1)
		})

		Convey("pop on empty stack reports nothing", func() {
			var empty Revisions
			rest, _, ok := empty.Pop()
			So(ok, ShouldBeFalse)
			So(rest, ShouldBeEmpty)
		})
	})

	Convey("push never aliases the caller's backing array", t, func() {
		base := make(Revisions, 1, 4)
		base[0] = Revision{Revision: 0}
		a, err := base.Push(Revision{Revision: 1})
		So(err, ShouldBeNil)
		b, err := base.Push(Revision{Revision: 5})
		So(err, ShouldBeNil)
		So(a.Numbers(), ShouldResemble, []uint32{0, 1})
		So(b.Numbers(), ShouldResemble, []uint32{0, 5})
	})
}

func TestReference(t *testing.T) {
	Convey("reference built from block and header", t, func() {
		block := &Block{Height: 7, Hash: hash.HashH([]byte("block"))}
		header := &StateTransitionHeader{
			Hash:       hash.HashH([]byte("st")),
			PacketHash: hash.HashH([]byte("packet")),
		}
		entity := hash.HashH([]byte("entity"))
		ref := NewReference(block, header, entity)
		So(ref.BlockHeight, ShouldEqual, 7)
		So(ref.BlockHash, ShouldResemble, block.Hash)
		So(ref.TransitionHash, ShouldResemble, header.Hash)
		So(ref.PacketHash, ShouldResemble, header.PacketHash)
		So(ref.EntityHash, ShouldResemble, entity)
		So(ref.IsZero(), ShouldBeFalse)
		So(Reference{}.IsZero(), ShouldBeTrue)
		So(ref.String(), ShouldStartWith, "7/")
	})
}

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

package utils

import (
	"reflect"

	"github.com/ugorji/go/codec"
)

var (
	msgpackHandle = &codec.MsgpackHandle{
		WriteExt: true,
	}
)

func init() {
	msgpackHandle.RawToString = true
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}(nil))
}

// DecodeMsgPack decodes msgpack bytes into out.
func DecodeMsgPack(b []byte, out interface{}) error {
	return codec.NewDecoderBytes(b, msgpackHandle).Decode(out)
}

// EncodeMsgPack returns the msgpack encoding of in.
func EncodeMsgPack(in interface{}) (b []byte, err error) {
	err = codec.NewEncoderBytes(&b, msgpackHandle).Encode(in)
	return
}

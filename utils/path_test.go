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
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHomeDirExpand(t *testing.T) {
	Convey("expand tilde", t, func() {
		usr, err := user.Current()
		So(err, ShouldBeNil)
		So(HomeDirExpand("~"), ShouldEqual, usr.HomeDir)
		So(HomeDirExpand("~/.drive"), ShouldEqual, filepath.Join(usr.HomeDir, ".drive"))
		So(HomeDirExpand("/var/lib/drive"), ShouldEqual, "/var/lib/drive")
		So(HomeDirExpand("~drive"), ShouldEqual, "~drive")
	})
}

func TestEnsureDir(t *testing.T) {
	Convey("create nested dir", t, func() {
		base, err := ioutil.TempDir("", "drive-utils")
		So(err, ShouldBeNil)
		defer os.RemoveAll(base)

		dir := filepath.Join(base, "a", "b")
		So(EnsureDir(dir), ShouldBeNil)
		info, err := os.Stat(dir)
		So(err, ShouldBeNil)
		So(info.IsDir(), ShouldBeTrue)
		So(EnsureDir(dir), ShouldBeNil)
	})
}

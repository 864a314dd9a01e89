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

package metric

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeState struct{}

func (fakeState) Height() uint32      { return 42 }
func (fakeState) RetainedBlocks() int { return 7 }

func TestStateCollector(t *testing.T) {
	Convey("state collector samples its source", t, func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(NewStateCollector(fakeState{}))
		mfs, err := reg.Gather()
		So(err, ShouldBeNil)
		got := map[string]float64{}
		for _, mf := range mfs {
			got[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
		So(got["drive_reader_height"], ShouldEqual, 42)
		So(got["drive_reader_retained_blocks"], ShouldEqual, 7)
	})
}

func TestHandlers(t *testing.T) {
	Convey("exposition handlers serve registered metrics", t, func() {
		EventsPublished.WithLabelValues("STATE_TRANSITION").Inc()
		rec := httptest.NewRecorder()
		Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Body.String(), ShouldContainSubstring, "drive_reader_events_total")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		SampleRuntime(ctx, time.Second)
		rec = httptest.NewRecorder()
		RuntimeHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
		So(rec.Code, ShouldEqual, http.StatusOK)
	})
}

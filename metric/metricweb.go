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
	"expvar"
	"net/http"
	"runtime"
	"time"

	mw "github.com/zserge/metric"
)

const mb = 1 << 20

var runtimeGauges = []string{"go:numgoroutine", "go:numcgocall", "go:alloc", "go:alloctotal"}

func init() {
	for _, name := range runtimeGauges {
		expvar.Publish(name, mw.NewGauge("1m1s", "5m5s", "1h1m"))
	}
}

// SampleRuntime feeds the expvar runtime gauges every interval until ctx is done.
func SampleRuntime(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sampleRuntime()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sampleRuntime() {
	m := &runtime.MemStats{}
	runtime.ReadMemStats(m)
	expvar.Get("go:numgoroutine").(mw.Metric).Add(float64(runtime.NumGoroutine()))
	expvar.Get("go:numcgocall").(mw.Metric).Add(float64(runtime.NumCgoCall()))
	expvar.Get("go:alloc").(mw.Metric).Add(float64(m.Alloc) / mb)
	expvar.Get("go:alloctotal").(mw.Metric).Add(float64(m.TotalAlloc) / mb)
}

// RuntimeHandler serves the expvar runtime page.
func RuntimeHandler() http.Handler {
	return mw.Handler(mw.Exposed)
}

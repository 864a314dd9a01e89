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
	"github.com/prometheus/client_golang/prometheus"
)

type stateMetrics []struct {
	desc    *prometheus.Desc
	eval    func() float64
	valType prometheus.ValueType
}

// StateSource exposes the reader position to the state collector.
type StateSource interface {
	Height() uint32
	RetainedBlocks() int
}

// StateCollector samples the reader position at scrape time.
type StateCollector struct {
	metrics stateMetrics
}

// NewStateCollector returns a collector reading from src on every scrape.
func NewStateCollector(src StateSource) *StateCollector {
	return &StateCollector{
		metrics: stateMetrics{
			{
				desc: prometheus.NewDesc(
					prometheus.BuildFQName(namespace, "reader", "height"),
					"Next block height the reader will request.",
					nil, nil,
				),
				eval:    func() float64 { return float64(src.Height()) },
				valType: prometheus.GaugeValue,
			},
			{
				desc: prometheus.NewDesc(
					prometheus.BuildFQName(namespace, "reader", "retained_blocks"),
					"Blocks retained for divergence detection.",
					nil, nil,
				),
				eval:    func() float64 { return float64(src.RetainedBlocks()) },
				valType: prometheus.GaugeValue,
			},
		},
	}
}

// Describe returns all descriptions of the collector.
func (sc *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, i := range sc.metrics {
		ch <- i.desc
	}
}

// Collect returns the current state of all metrics of the collector.
func (sc *StateCollector) Collect(ch chan<- prometheus.Metric) {
	for _, i := range sc.metrics {
		ch <- prometheus.MustNewConstMetric(i.desc, i.valType, i.eval())
	}
}

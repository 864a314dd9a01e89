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

// Package metric holds the prometheus collectors of the node and the expvar runtime page.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drive"

var (
	// Registry holds every collector of the node.
	Registry = prometheus.NewRegistry()

	// EventsPublished counts chain events by topic once every subscriber handled them.
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "events_total",
		Help:      "Chain events delivered to all subscribers.",
	}, []string{"topic"})
	// OrphanedTransitions counts transitions orphaned by reorganizations.
	OrphanedTransitions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "orphaned_transitions_total",
		Help:      "State transitions orphaned by chain reorganizations.",
	})
	// Resets counts divergences deeper than the retained window.
	Resets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "resets_total",
		Help:      "Full state resets caused by deep divergence.",
	})
	// ReaderHalts counts fatal errors that stopped the reader.
	ReaderHalts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "halts_total",
		Help:      "Fatal errors that halted the reader.",
	})
	// ReaderRetries counts transient header source failures retried by the reader.
	ReaderRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "retries_total",
		Help:      "Transient header source failures retried with backoff.",
	})
	// EntityChanges counts state view record mutations by kind.
	EntityChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stateview",
		Name:      "entity_changes_total",
		Help:      "State view record mutations.",
	}, []string{"kind"})
	// ChainLockedHeight is the height of the latest accepted chain lock.
	ChainLockedHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "core",
		Name:      "chainlocked_height",
		Help:      "Height covered by the latest accepted chain lock.",
	})
	// PacketCache counts packet store lookups by outcome.
	PacketCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "packet",
		Name:      "lookups_total",
		Help:      "Packet store lookups by outcome.",
	}, []string{"result"})
	// APIRequests counts JSON-RPC API calls by method and outcome.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API calls by method and outcome.",
	}, []string{"method", "result"})
)

func init() {
	Registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		EventsPublished,
		OrphanedTransitions,
		Resets,
		ReaderHalts,
		ReaderRetries,
		EntityChanges,
		ChainLockedHeight,
		PacketCache,
		APIRequests,
	)
}

// Handler returns the prometheus exposition handler of Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Copyright 2026 The cvs.io Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvs",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Protocol requests received, by request name.",
		},
		[]string{"request"},
	)

	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvs",
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Protocol responses sent, by response name.",
		},
		[]string{"response"},
	)

	protocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvs",
			Subsystem: "server",
			Name:      "protocol_errors_total",
			Help:      "Sessions ended by a protocol error.",
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cvs",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Sessions currently being served.",
		},
	)

	lockWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvs",
			Subsystem: "lock",
			Name:      "waits_total",
			Help:      "Times a session slept waiting for a repository lock, by lock kind.",
		},
		[]string{"kind"},
	)

	lockAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvs",
			Subsystem: "lock",
			Name:      "acquired_total",
			Help:      "Repository locks obtained, by lock kind.",
		},
		[]string{"kind"},
	)

	lockWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvs",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent obtaining repository locks, by lock kind.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)
)

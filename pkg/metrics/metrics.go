// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the pipeline's Prometheus surface. It is
// entirely optional: the orchestrator only wires it up when --metrics-addr
// is set.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge the pipeline updates.
type Registry struct {
	CandidatesProcessed *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	BreakerOpen         *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	QualityValidRatio   prometheus.Gauge
	RunCost             prometheus.Gauge
}

func NewRegistry() *Registry {
	return &Registry{
		CandidatesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "achesucatas_candidates_processed_total",
			Help: "Candidates processed, partitioned by final status.",
		}, []string{"status"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "achesucatas_http_requests_total",
			Help: "Outbound HTTP requests, partitioned by host and outcome.",
		}, []string{"host", "outcome"}),
		BreakerOpen: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "achesucatas_breaker_open_total",
			Help: "Times a per-host circuit breaker transitioned to open.",
		}, []string{"host"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "achesucatas_run_duration_seconds",
			Help:    "Wall-clock duration of a full orchestrator run.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
		QualityValidRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "achesucatas_quality_valid_ratio",
			Help: "taxa_validos_percent of the most recently completed run.",
		}),
		RunCost: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "achesucatas_run_cost_usd",
			Help: "Total FinOps cost (USD) of the most recently completed run.",
		}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is
// canceled. Errors other than a clean shutdown are logged, never fatal:
// metrics are an optional capability, never load-bearing for the pipeline.
func Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics.serve.error", "addr", addr, "err", err)
	}
}

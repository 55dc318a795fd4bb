/*
Copyright © 2024 the dotmap authors.
This file is part of dotmap.

dotmap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

dotmap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with dotmap.  If not, see <http://www.gnu.org/licenses/>.
*/

package dotmap

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of a Server.
type Metrics struct {
	gatherer prometheus.Gatherer

	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
	Queries   *prometheus.CounterVec
	Areas     prometheus.Gauge
}

// NewMetrics registers the server metrics with reg, or with the default
// Prometheus registry if reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dotmap_http_requests_total",
		Help: "Handled HTTP requests by handler and status code.",
	}, []string{"handler", "code"})
	m.Durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dotmap_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"handler"})
	m.Queries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dotmap_area_queries_total",
		Help: "Area queries by result (found or not_found).",
	}, []string{"result"})
	m.Areas = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dotmap_indexed_areas",
		Help: "Number of small areas in the query index.",
	})
	for _, c := range []prometheus.Collector{m.Requests, m.Durations, m.Queries, m.Areas} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return nil, fmt.Errorf("dotmap: metrics already registered: %w", err)
			}
			return nil, err
		}
	}
	return m, nil
}

// Handler returns a handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// statusRecorder records the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument records the number and duration of requests served by h
// under the given handler name.
func (m *Metrics) Instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(rec, r)
		m.Requests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
		m.Durations.WithLabelValues(name).Observe(time.Since(start).Seconds())
	})
}

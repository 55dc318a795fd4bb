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
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// QueryResponse is the body of a successful /api/query response.
type QueryResponse struct {
	ID             string                    `json:"id"`
	PopulationData map[string]map[string]int `json:"population_data"`
}

// NewQueryResponse returns the query response for area a.
func NewQueryResponse(a *SmallArea) *QueryResponse {
	o := &QueryResponse{
		ID:             a.ID,
		PopulationData: make(map[string]map[string]int, len(a.Population)),
	}
	for name, c := range a.Population {
		o.PopulationData[name] = c.Flatten()
	}
	return o
}

// ServerConfig holds Server settings.
type ServerConfig struct {
	// TileDir is the directory served under /tiles/.
	TileDir string

	// WebRoot, if not empty, is a directory served under /.
	WebRoot string

	// CacheSize is the number of query results to remember.
	CacheSize int

	// Registerer receives the server metrics. If nil, the default
	// Prometheus registry is used.
	Registerer prometheus.Registerer

	// Log receives request logs. If nil, the standard logger is used.
	Log logrus.FieldLogger
}

// Server answers area queries and serves map tiles over HTTP.
type Server struct {
	index   *CachedIndex
	metrics *Metrics
	handler http.Handler

	Log logrus.FieldLogger
}

// NewServer creates a server that answers queries using idx.
func NewServer(idx *AreaIndex, c ServerConfig) (*Server, error) {
	s := &Server{Log: c.Log}
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	size := c.CacheSize
	if size <= 0 {
		size = 1
	}
	s.index = NewCachedIndex(idx, runtime.GOMAXPROCS(0), size)

	m, err := NewMetrics(c.Registerer)
	if err != nil {
		return nil, err
	}
	m.Areas.Set(float64(idx.Len()))
	s.metrics = m

	mux := http.NewServeMux()
	mux.Handle("/api/query", m.Instrument("query", http.HandlerFunc(s.queryHandler)))
	tiles := http.StripPrefix("/tiles/", http.FileServer(http.Dir(os.ExpandEnv(c.TileDir))))
	mux.Handle("/tiles/", m.Instrument("tiles", tiles))
	mux.Handle("/metrics", m.Handler())
	if c.WebRoot != "" {
		mux.Handle("/", m.Instrument("static", http.FileServer(http.Dir(os.ExpandEnv(c.WebRoot)))))
	}
	s.handler = cors.AllowAll().Handler(mux)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// parseQueryRequest reads the lat and lon query parameters.
func parseQueryRequest(r *http.Request) (lon, lat float64, err error) {
	q := r.URL.Query()
	lat, err = s2f(q.Get("lat"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lat %q", q.Get("lat"))
	}
	lon, err = s2f(q.Get("lon"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lon %q", q.Get("lon"))
	}
	return lon, lat, nil
}

func s2f(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("dotmap: writing response")
	}
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	lon, lat, err := parseQueryRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, ok, err := s.index.Lookup(r.Context(), lon, lat)
	if err != nil {
		s.Log.WithError(err).Error("dotmap query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		s.metrics.Queries.WithLabelValues("not_found").Inc()
		s.Log.WithFields(logrus.Fields{
			"lon":  lon,
			"lat":  lat,
			"addr": r.RemoteAddr,
		}).Debug("dotmap query: not found")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.metrics.Queries.WithLabelValues("found").Inc()
	s.Log.WithFields(logrus.Fields{
		"lon":  lon,
		"lat":  lat,
		"id":   a.ID,
		"addr": r.RemoteAddr,
	}).Debug("dotmap query")
	writeJSON(w, http.StatusOK, NewQueryResponse(a))
}

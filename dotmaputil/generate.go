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

package dotmaputil

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/dotmap"
)

// joiner returns the Joiner specified by c.
func (c *Config) joiner(log logrus.FieldLogger) *dotmap.Joiner {
	return &dotmap.Joiner{
		GeometryFile:   c.GeometryFile,
		GeometryColumn: c.JoinColumnGeometry,
		TableFile:      c.DataFile,
		TableColumn:    c.JoinColumnData,
		Datasets:       c.Datasets,
		Log:            log,
	}
}

// Generate loads the small areas, removes water if a water mask is
// specified, places the dots, and writes the tiles.
func Generate(c *Config, log logrus.FieldLogger) error {
	start := time.Now()

	log.Info("dotmap: loading small areas")
	areas, err := c.joiner(log).Join()
	if err != nil {
		return err
	}

	if c.WaterMask != "" {
		log.Info("dotmap: removing water")
		w, err := dotmap.LoadWaterMask(c.WaterMask, log)
		if err != nil {
			return err
		}
		stats := w.Apply(areas)
		log.WithFields(logrus.Fields{
			"areas":        stats.Areas,
			"subtractions": stats.Subtractions,
		}).Info("dotmap: removed water")
	}

	log.Info("dotmap: placing dots")
	s := &dotmap.Sampler{Datasets: c.Datasets, Seed: c.Seed, Log: log}
	dots, _ := s.Sample(areas)

	log.Info("dotmap: rendering tiles")
	r := &dotmap.Rasterizer{
		Dir:      c.TileDir,
		MinZoom:  c.MinZoom,
		MaxZoom:  c.MaxZoom,
		TileSize: c.TileSize,
		Datasets: c.Datasets,
		Log:      log,
	}
	stats, err := r.Render(dots)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"dots":    len(dots),
		"tiles":   stats.Tiles,
		"failed":  stats.Failed,
		"elapsed": time.Since(start).String(),
	}).Info("dotmap: finished")
	return nil
}

// NewServer loads the small areas and returns a web server that answers
// queries about them. reg receives the server metrics; if it is nil, the
// default Prometheus registry is used.
func NewServer(c *Config, reg prometheus.Registerer, log logrus.FieldLogger) (*http.Server, error) {
	log.Info("dotmap: loading small areas")
	areas, err := c.joiner(log).Join()
	if err != nil {
		return nil, err
	}
	s, err := dotmap.NewServer(dotmap.NewAreaIndex(areas), dotmap.ServerConfig{
		TileDir:    c.TileDir,
		WebRoot:    c.WebRoot,
		CacheSize:  c.CacheSize,
		Registerer: reg,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              c.Address,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}, nil
}

// Serve starts a web server as specified by c and blocks until it stops.
func Serve(c *Config, log logrus.FieldLogger) error {
	srv, err := NewServer(c, nil, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"addr":  "http://" + srv.Addr,
		"tiles": c.TileDir,
	}).Info("dotmap: listening")
	return srv.ListenAndServe()
}

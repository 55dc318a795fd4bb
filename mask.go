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
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/sirupsen/logrus"
)

// waterPolygon is a single water polygon stored in a WaterMask index.
type waterPolygon struct {
	geom.Polygon
}

// WaterMask holds water polygons that are removed from small areas
// before sampling.
type WaterMask struct {
	index *rtree.Rtree
	n     int
}

// NewWaterMask creates a WaterMask from the given polygons. MultiPolygons
// are split into their member polygons.
func NewWaterMask(polys ...geom.Polygonal) *WaterMask {
	w := &WaterMask{index: rtree.NewTree(25, 50)}
	for _, p := range polys {
		for _, pp := range p.Polygons() {
			if len(pp) == 0 {
				continue
			}
			w.index.Insert(waterPolygon{Polygon: pp})
			w.n++
		}
	}
	return w
}

// LoadWaterMask reads water polygons from a GeoJSON FeatureCollection.
// Features that are not Polygons or MultiPolygons are ignored.
func LoadWaterMask(file string, log logrus.FieldLogger) (*WaterMask, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var polys []geom.Polygonal
	skipped, err := decodeFeatureCollection(file, func(_ map[string]json.RawMessage, g geom.Polygonal) {
		polys = append(polys, g)
	})
	if err != nil {
		return nil, err
	}
	w := NewWaterMask(polys...)
	log.WithFields(logrus.Fields{
		"file":     file,
		"polygons": w.n,
		"skipped":  skipped,
	}).Info("loaded water mask")
	return w, nil
}

// Len returns the number of water polygons in the mask.
func (w *WaterMask) Len() int { return w.n }

// MaskStats summarizes the result of applying a WaterMask.
type MaskStats struct {
	// Areas is the number of areas whose geometry was changed.
	Areas int

	// Subtractions is the total number of water polygons subtracted.
	Subtractions int
}

// subtract removes the water from g. Only polygons that pass the
// bounding-box search and have a positive intersection area are
// subtracted.
func (w *WaterMask) subtract(g geom.Polygonal) (geom.Polygonal, int) {
	var n int
	for _, c := range w.index.SearchIntersect(g.Bounds()) {
		water := c.(waterPolygon)
		if g.Intersection(water.Polygon).Area() <= 0 {
			continue
		}
		g = g.Difference(water.Polygon)
		n++
	}
	return g, n
}

// Apply subtracts the water polygons from each area's geometry, in
// parallel across areas. Areas that do not touch any water are left
// untouched. An area may be reduced to an empty geometry.
func (w *WaterMask) Apply(areas []*SmallArea) MaskStats {
	ncpu := runtime.GOMAXPROCS(0)
	var changed, subtractions int64
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for i := p; i < len(areas); i += ncpu {
				a := areas[i]
				if a.Polygonal == nil {
					continue
				}
				g, n := w.subtract(a.Polygonal)
				if n > 0 {
					a.Polygonal = g
					atomic.AddInt64(&changed, 1)
					atomic.AddInt64(&subtractions, int64(n))
				}
			}
			wg.Done()
		}(p)
	}
	wg.Wait()
	return MaskStats{Areas: int(changed), Subtractions: int(subtractions)}
}

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
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestLoadWaterMask(t *testing.T) {
	w, err := LoadWaterMask("testdata/water.geojson", nil)
	if err != nil {
		t.Fatal(err)
	}
	// One polygon plus the two members of the MultiPolygon; the
	// LineString is ignored.
	if w.Len() != 3 {
		t.Errorf("want 3 water polygons, got %d", w.Len())
	}
}

func TestWaterMask_Apply(t *testing.T) {
	w, err := LoadWaterMask("testdata/water.geojson", nil)
	if err != nil {
		t.Fatal(err)
	}
	far := square(20, 20, 21, 21)
	// nearby has a bounding box that overlaps the lake, but does not
	// intersect it.
	nearby := geom.Polygon{{{X: 1.9, Y: 3}, {X: 4, Y: 1}, {X: 4, Y: 3}, {X: 1.9, Y: 3}}}
	areas := []*SmallArea{
		{ID: "half", Polygonal: square(0, 0, 1, 1)},
		{ID: "far", Polygonal: far},
		{ID: "nearby", Polygonal: nearby},
		{ID: "covered", Polygonal: square(10.2, 10.2, 10.8, 10.8)},
	}
	before := make([]float64, len(areas))
	for i, a := range areas {
		before[i] = a.Area()
	}
	stats := w.Apply(areas)

	if stats.Areas != 2 {
		t.Errorf("want 2 changed areas, got %d", stats.Areas)
	}
	if a := areas[0].Area(); !scalar.EqualWithinAbs(a, 0.5, 1e-10) {
		t.Errorf("half area: got %g, want 0.5", a)
	}
	if !reflect.DeepEqual(areas[1].Polygonal, far) {
		t.Errorf("far area should be unchanged")
	}
	if !reflect.DeepEqual(areas[2].Polygonal, nearby) {
		t.Errorf("nearby area should be unchanged")
	}
	if a := areas[3].Area(); !scalar.EqualWithinAbs(a, 0, 1e-10) {
		t.Errorf("covered area: got %g, want 0", a)
	}
	for i, a := range areas {
		if a.Area() > before[i]+1e-10 {
			t.Errorf("%s: masking increased area from %g to %g", a.ID, before[i], a.Area())
		}
	}
}

func TestWaterMask_sampledDotsAvoidWater(t *testing.T) {
	water := square(0.5, -1, 1.5, 2)
	w := NewWaterMask(water)
	areas := []*SmallArea{{
		ID:        "A1",
		Polygonal: square(0, 0, 1, 1),
		Population: map[string]*Counts{
			"d": {Categories: map[string]int{"A": 200}},
		},
	}}
	w.Apply(areas)
	s := &Sampler{
		Datasets: map[string]*DatasetConfig{
			"d": {Categories: []CategoryConfig{{Name: "A", Color: "#ff0000"}}},
		},
		Seed: 1,
	}
	dots, stats := s.Sample(areas)
	if stats.Placed == 0 {
		t.Fatal("no dots were placed")
	}
	for _, d := range dots {
		if d.Within(water) == geom.Inside {
			t.Errorf("dot %v is in the water", d.Point)
		}
		if d.X >= 0.5 {
			t.Errorf("dot %v is in the covered half", d.Point)
		}
	}
}

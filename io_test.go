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
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

func areaIDs(areas []*SmallArea) []string {
	ids := make([]string, len(areas))
	for i, a := range areas {
		ids[i] = a.ID
	}
	return ids
}

func TestJoin_geojson(t *testing.T) {
	j := &Joiner{
		GeometryFile:   "testdata/areas.geojson",
		GeometryColumn: "code",
		TableFile:      "testdata/population.csv",
		TableColumn:    "code",
		Datasets:       testDatasets(),
	}
	areas, err := j.Join()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"X001", "X007", "42"}; !reflect.DeepEqual(areaIDs(areas), want) {
		t.Fatalf("ids: got %v, want %v", areaIDs(areas), want)
	}
	if _, ok := areas[1].Polygonal.(geom.MultiPolygon); !ok {
		t.Errorf("X007 should be a MultiPolygon, not %T", areas[1].Polygonal)
	}
	if a := areas[0].Area(); a != 1 {
		t.Errorf("X001 area: got %g, want 1", a)
	}
	if got := areas[2].Population["race"].Categories["Other"]; got != 2 {
		t.Errorf("42 Other: got %d, want 2", got)
	}
}

func TestJoin_errors(t *testing.T) {
	for _, test := range []struct {
		name             string
		geometry, column string
		msg              string
	}{
		{name: "not a collection", geometry: "testdata/not_a_collection.geojson", column: "code", msg: "FeatureCollection"},
		{name: "unsupported format", geometry: "testdata/population.csv", column: "code", msg: "unsupported geometry format"},
		{name: "missing file", geometry: "testdata/missing.geojson", column: "code", msg: "missing.geojson"},
	} {
		t.Run(test.name, func(t *testing.T) {
			j := &Joiner{
				GeometryFile:   test.geometry,
				GeometryColumn: test.column,
				TableFile:      "testdata/population.csv",
				TableColumn:    "code",
				Datasets:       testDatasets(),
			}
			_, err := j.Join()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), test.msg) {
				t.Errorf("error %q should contain %q", err, test.msg)
			}
		})
	}
}

func TestPropertyString(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
		ok   bool
	}{
		{`"X001"`, "X001", true},
		{`42`, "42", true},
		{`-1.5`, "-1.5", true},
		{`null`, "", false},
		{`true`, "", false},
		{`{"a": 1}`, "", false},
		{``, "", false},
	} {
		got, ok := propertyString([]byte(test.in))
		if got != test.want || ok != test.ok {
			t.Errorf("propertyString(%s) = %q, %v; want %q, %v", test.in, got, ok, test.want, test.ok)
		}
	}
}

// writeShapefile writes polygons with a string "code" field and a
// numeric "num" field.
func writeShapefile(t *testing.T, file string, codes []string, polys []geom.Geom) {
	t.Helper()
	e, err := shp.NewEncoderFromFields(file, goshp.POLYGON,
		goshp.StringField("code", 10), goshp.NumberField("num", 10))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range polys {
		if err := e.EncodeFields(p, codes[i], i); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
}

func TestJoin_shapefile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "areas.shp")
	writeShapefile(t, f, []string{"X001", "", "X007", "X999"}, []geom.Geom{
		square(0, 0, 1, 1),
		square(10, 10, 11, 11),
		square(2, 2, 3, 3),
		square(8, 8, 9, 9),
	})

	t.Run("string field", func(t *testing.T) {
		j := &Joiner{
			GeometryFile:   f,
			GeometryColumn: "code",
			TableFile:      "testdata/population.csv",
			TableColumn:    "code",
			Datasets:       testDatasets(),
		}
		areas, err := j.Join()
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"X001", "X007"}; !reflect.DeepEqual(areaIDs(areas), want) {
			t.Fatalf("ids: got %v, want %v", areaIDs(areas), want)
		}
		p := geom.Point{X: 2.5, Y: 2.5}
		if p.Within(areas[1]) != geom.Inside {
			t.Errorf("%v should be inside X007", p)
		}
	})
	t.Run("numeric field", func(t *testing.T) {
		j := &Joiner{
			GeometryFile:   f,
			GeometryColumn: "num",
			TableFile:      "testdata/population.csv",
			TableColumn:    "code",
			Datasets:       testDatasets(),
		}
		if _, err := j.Join(); err == nil || !strings.Contains(err.Error(), "must be a string field") {
			t.Errorf("expected a join field type error, got %v", err)
		}
	})
	t.Run("shape types", func(t *testing.T) {
		ring := []goshp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
		pl := goshp.NewPolyLine([][]goshp.Point{ring})
		pz := &goshp.PolygonZ{
			Box:       pl.Box,
			NumParts:  pl.NumParts,
			NumPoints: pl.NumPoints,
			Parts:     pl.Parts,
			Points:    pl.Points,
			ZArray:    make([]float64, len(ring)),
			MArray:    make([]float64, len(ring)),
		}
		for _, test := range []struct {
			name  string
			typ   goshp.ShapeType
			shape goshp.Shape
			want  []string
		}{
			{name: "polygonz", typ: goshp.POLYGONZ, shape: pz, want: []string{"X001"}},
			{name: "polyline", typ: goshp.POLYLINE, shape: pl, want: []string{}},
		} {
			t.Run(test.name, func(t *testing.T) {
				f := filepath.Join(t.TempDir(), test.name+".shp")
				w, err := goshp.Create(f, test.typ)
				if err != nil {
					t.Fatal(err)
				}
				if err := w.SetFields([]goshp.Field{goshp.StringField("code", 10)}); err != nil {
					t.Fatal(err)
				}
				row := w.Write(test.shape)
				if err := w.WriteAttribute(int(row), 0, "X001"); err != nil {
					t.Fatal(err)
				}
				w.Close()

				j := &Joiner{
					GeometryFile:   f,
					GeometryColumn: "code",
					TableFile:      "testdata/population.csv",
					TableColumn:    "code",
					Datasets:       testDatasets(),
				}
				areas, err := j.Join()
				if err != nil {
					t.Fatal(err)
				}
				if got := areaIDs(areas); !reflect.DeepEqual(got, test.want) {
					t.Errorf("ids: got %v, want %v", got, test.want)
				}
			})
		}
	})
	t.Run("missing field", func(t *testing.T) {
		j := &Joiner{
			GeometryFile:   f,
			GeometryColumn: "GEOID",
			TableFile:      "testdata/population.csv",
			TableColumn:    "code",
			Datasets:       testDatasets(),
		}
		if _, err := j.Join(); err == nil {
			t.Error("expected an error for a missing join field")
		}
	})
}

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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/sirupsen/logrus"
)

// Joiner joins polygon geometry to tabular population counts.
type Joiner struct {
	// GeometryFile is a shapefile (.shp) or GeoJSON FeatureCollection
	// (.json or .geojson) holding the small-area polygons in
	// longitude/latitude.
	GeometryFile string

	// GeometryColumn is the attribute or property in GeometryFile
	// holding the join key.
	GeometryColumn string

	// TableFile is a .csv, .tsv, or .xlsx file holding population counts.
	TableFile string

	// TableColumn is the column in TableFile holding the join key.
	TableColumn string

	// Datasets specifies how table columns are combined into
	// categories, keyed by dataset name.
	Datasets map[string]*DatasetConfig

	// Log receives progress messages. If nil, the standard logger is used.
	Log logrus.FieldLogger
}

func (j *Joiner) log() logrus.FieldLogger {
	if j.Log == nil {
		return logrus.StandardLogger()
	}
	return j.Log
}

// Join reads the table and the geometry and returns one SmallArea for each
// geometry record whose key matches a table row, in geometry-file order.
// Records without a match on either side are dropped. A key that appears
// on more than one geometry record results in one SmallArea per record.
func (j *Joiner) Join() ([]*SmallArea, error) {
	pop, err := LoadTable(j.TableFile, j.TableColumn, j.Datasets, j.log())
	if err != nil {
		return nil, err
	}
	var areas []*SmallArea
	var unmatched int
	err = readGeometry(j.GeometryFile, j.GeometryColumn, j.log(), func(id string, g geom.Polygonal) {
		p, ok := pop[id]
		if !ok {
			unmatched++
			return
		}
		areas = append(areas, &SmallArea{ID: id, Polygonal: g, Population: p})
	})
	if err != nil {
		return nil, err
	}
	j.log().WithFields(logrus.Fields{
		"file":      j.GeometryFile,
		"areas":     len(areas),
		"unmatched": unmatched,
	}).Info("joined geometry to population table")
	return areas, nil
}

// readGeometry calls f for each polygonal record in file that has a
// non-empty join key. The format is chosen by the file extension.
func readGeometry(file, column string, log logrus.FieldLogger, f func(id string, g geom.Polygonal)) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".shp":
		return readShapefile(file, column, log, f)
	case ".json", ".geojson":
		return readGeoJSON(file, column, log, f)
	default:
		return fmt.Errorf("dotmap: unsupported geometry format %q", filepath.Ext(file))
	}
}

// shpFieldName converts a shapefile field name to a string.
func shpFieldName(name [11]byte) string {
	b := bytes.TrimRight(name[:], "\x00")
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func readShapefile(file, column string, log logrus.FieldLogger, f func(id string, g geom.Polygonal)) error {
	d, err := shp.NewDecoder(file)
	if err != nil {
		return fmt.Errorf("dotmap: opening shapefile %s: %w", file, err)
	}
	defer d.Close()

	var field *goshp.Field
	fields := d.Fields()
	for i := range fields {
		if strings.EqualFold(shpFieldName(fields[i].Name), column) {
			field = &fields[i]
			break
		}
	}
	if field == nil {
		return fmt.Errorf("dotmap: shapefile %s does not contain join field %q", file, column)
	}
	if field.Fieldtype != 'C' {
		return fmt.Errorf("dotmap: shapefile join field %q must be a string field, not type %q", column, field.Fieldtype)
	}

	var noKey, notPolygon int
	for {
		g, vals, more := d.DecodeRowFields(column)
		if !more {
			break
		}
		id := strings.Trim(vals[column], "\x00 ")
		if id == "" {
			noKey++
			continue
		}
		switch gg := g.(type) {
		case geom.Polygon:
			f(id, gg)
		default:
			notPolygon++
		}
	}
	if err := d.Error(); err != nil {
		return fmt.Errorf("dotmap: reading shapefile %s: %w", file, err)
	}
	log.WithFields(logrus.Fields{
		"file":        file,
		"no_key":      noKey,
		"not_polygon": notPolygon,
	}).Debug("skipped shapefile records")
	return nil
}

// featureCollection is a GeoJSON FeatureCollection whose geometries are
// decoded separately.
type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry   json.RawMessage            `json:"geometry"`
		Properties map[string]json.RawMessage `json:"properties"`
	} `json:"features"`
}

// decodeFeatureCollection decodes a GeoJSON FeatureCollection and calls
// f with the properties and geometry of each Polygon or MultiPolygon
// feature. It returns the number of features skipped because their
// geometry is missing or of another type.
func decodeFeatureCollection(file string, f func(props map[string]json.RawMessage, g geom.Polygonal)) (int, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("dotmap: reading %s: %w", file, err)
	}
	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return 0, fmt.Errorf("dotmap: decoding %s: %w", file, err)
	}
	if fc.Type != "FeatureCollection" {
		return 0, fmt.Errorf("dotmap: %s is not a GeoJSON FeatureCollection", file)
	}
	var skipped int
	for i, ft := range fc.Features {
		raw := bytes.TrimSpace(ft.Geometry)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			skipped++
			continue
		}
		var t struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return 0, fmt.Errorf("dotmap: %s feature %d: %w", file, i, err)
		}
		if t.Type != "Polygon" && t.Type != "MultiPolygon" {
			skipped++
			continue
		}
		g, err := geojson.Decode(raw)
		if err != nil {
			return 0, fmt.Errorf("dotmap: %s feature %d: %w", file, i, err)
		}
		switch gg := g.(type) {
		case geom.Polygon:
			f(ft.Properties, gg)
		case geom.MultiPolygon:
			f(ft.Properties, gg)
		default:
			return 0, fmt.Errorf("dotmap: %s feature %d: invalid geometry type %T", file, i, g)
		}
	}
	return skipped, nil
}

// propertyString returns a GeoJSON property as a string. Numbers are
// returned with their literal JSON text. Other value types are
// reported as missing.
func propertyString(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}

func readGeoJSON(file, column string, log logrus.FieldLogger, f func(id string, g geom.Polygonal)) error {
	var noKey int
	skipped, err := decodeFeatureCollection(file, func(props map[string]json.RawMessage, g geom.Polygonal) {
		id, ok := propertyString(props[column])
		if !ok || id == "" {
			noKey++
			return
		}
		f(id, g)
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":        file,
		"no_key":      noKey,
		"not_polygon": skipped,
	}).Debug("skipped GeoJSON features")
	return nil
}

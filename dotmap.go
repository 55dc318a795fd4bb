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

// Package dotmap creates dot-density map tiles from census-style small-area
// population counts and answers point-location queries against the same
// small areas.
//
// The processing chain is: Join tabular counts to polygon geometry,
// optionally subtract water polygons with a WaterMask, place one dot per
// person with a Sampler, and draw the dots into a Web Mercator tile pyramid
// with a Rasterizer. An AreaIndex finds the small area containing a
// longitude/latitude point.
package dotmap

import (
	"encoding/gob"
	"sort"

	"github.com/ctessum/geom"
)

// Version gives the version number.
const Version = "1.0.0"

// NotStatedKey is the key under which not-stated counts are reported
// by Counts.Flatten.
const NotStatedKey = "Not Stated"

func init() {
	gob.Register(geom.Polygon{})
	gob.Register(geom.MultiPolygon{})
}

// SmallArea is a single census-style area: a polygon with population
// counts for one or more datasets.
type SmallArea struct {
	// ID is the value of the join column shared by the geometry
	// and tabular inputs.
	ID string

	// Polygonal is the area geometry in longitude/latitude. It may be
	// reduced by a WaterMask but is never enlarged.
	geom.Polygonal

	// Population holds the counts for each dataset, keyed by dataset name.
	Population map[string]*Counts
}

// Counts holds the population counts of one dataset in one area.
type Counts struct {
	// Categories holds the count for each configured category.
	Categories map[string]int

	// NotStated is the number of people who did not state a category.
	// It is only meaningful when HasNotStated is true.
	NotStated    int
	HasNotStated bool
}

// Flatten returns the counts as a single category→count mapping, with the
// not-stated count under NotStatedKey. A real category named NotStatedKey
// takes precedence.
func (c *Counts) Flatten() map[string]int {
	o := make(map[string]int, len(c.Categories)+1)
	if c.HasNotStated {
		o[NotStatedKey] = c.NotStated
	}
	for k, v := range c.Categories {
		o[k] = v
	}
	return o
}

// Dot is a single sampled person.
type Dot struct {
	geom.Point // longitude, latitude
	Dataset    string
	Category   string
}

// DatasetConfig specifies how the tabular columns of one dataset are
// combined into categories.
type DatasetConfig struct {
	// Categories are the categories of the dataset, in drawing
	// and reporting order.
	Categories []CategoryConfig

	// NotStated optionally specifies the column holding the number of
	// people who did not state a category.
	NotStated *NotStatedConfig
}

// CategoryConfig specifies one category of a dataset.
type CategoryConfig struct {
	// Name is the category name.
	Name string

	// Color is the hex dot color, e.g. "#e41a1c".
	Color string

	// Columns are the tabular columns that are summed to get the
	// category count.
	Columns []string
}

// NotStatedConfig specifies the column holding not-stated counts.
type NotStatedConfig struct {
	Column string
}

// datasetNames returns the dataset names in sorted order.
func datasetNames(datasets map[string]*DatasetConfig) []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

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
	"context"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/requestcache"

	"github.com/spatialmodel/dotmap/internal/hash"
)

// areaEntry is an AreaIndex entry: the bounds of an area and its
// position in the area slice.
type areaEntry struct {
	*bounds
	i int
}

// bounds lets areaEntry embed *geom.Bounds without the field name
// hiding the promoted Bounds method that geom.Geom requires.
type bounds = geom.Bounds

// AreaIndex finds the small area containing a point. It is read-only
// after creation and safe for concurrent use.
type AreaIndex struct {
	areas []*SmallArea
	tree  *rtree.Rtree
}

// NewAreaIndex indexes the given areas. Areas with empty geometry are
// not indexed.
func NewAreaIndex(areas []*SmallArea) *AreaIndex {
	idx := &AreaIndex{
		areas: areas,
		tree:  rtree.NewTree(25, 50),
	}
	for i, a := range areas {
		if a.Polygonal == nil {
			continue
		}
		b := a.Bounds()
		if b == nil || b.Empty() {
			continue
		}
		idx.tree.Insert(areaEntry{bounds: b, i: i})
	}
	return idx
}

// Len returns the number of areas the index was built from.
func (idx *AreaIndex) Len() int { return len(idx.areas) }

// Query returns the area containing the point (lon, lat). Points on an
// area boundary are contained in that area. When more than one area
// contains the point, the one that comes first in the area slice is
// returned. ok is false if no area contains the point.
func (idx *AreaIndex) Query(lon, lat float64) (a *SmallArea, ok bool) {
	p := geom.Point{X: lon, Y: lat}
	cands := idx.tree.SearchIntersect(p.Bounds())
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].(areaEntry).i < cands[j].(areaEntry).i
	})
	for _, c := range cands {
		i := c.(areaEntry).i
		if p.Within(idx.areas[i].Polygonal) != geom.Outside {
			return idx.areas[i], true
		}
	}
	return nil, false
}

// queryPoint is a request to a CachedIndex.
type queryPoint struct {
	Lon, Lat float64
}

// CachedIndex remembers recent AreaIndex query results. It is safe for
// concurrent use.
type CachedIndex struct {
	*AreaIndex
	cache *requestcache.Cache
}

// NewCachedIndex wraps idx with a cache holding up to size results.
// workers is the number of queries that can run at once.
func NewCachedIndex(idx *AreaIndex, workers, size int) *CachedIndex {
	c := &CachedIndex{AreaIndex: idx}
	c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		q := request.(queryPoint)
		a, _ := idx.Query(q.Lon, q.Lat)
		return a, nil
	}, workers, requestcache.Memory(size))
	return c
}

// Lookup returns the area containing (lon, lat), as Query does.
func (c *CachedIndex) Lookup(ctx context.Context, lon, lat float64) (*SmallArea, bool, error) {
	q := queryPoint{Lon: lon, Lat: lat}
	r, err := c.cache.NewRequest(ctx, q, hash.Hash(q)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("dotmap: querying area index: %w", err)
	}
	a, _ := r.(*SmallArea)
	return a, a != nil, nil
}

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
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// MaxAttempts is the number of random points tried when placing a
// single dot before the dot is dropped.
const MaxAttempts = 100

// Sampler places dots inside small areas.
type Sampler struct {
	// Datasets specifies the categories to sample, keyed by dataset name.
	Datasets map[string]*DatasetConfig

	// Seed seeds the random number generators. Runs with the same
	// seed and input give the same dots. If Seed is zero, a seed is
	// chosen from the clock.
	Seed int64

	// Log receives progress messages. If nil, the standard logger is used.
	Log logrus.FieldLogger
}

// SampleStats summarizes a sampling run.
type SampleStats struct {
	// Requested is the number of dots after not-stated redistribution.
	Requested int

	// Placed is the number of dots that were placed.
	Placed int

	// Seed is the seed that was used.
	Seed int64
}

// Dropped returns the number of dots that could not be placed.
func (s SampleStats) Dropped() int { return s.Requested - s.Placed }

// FinalCounts returns the number of dots to draw for each category of d,
// redistributing the not-stated count c.NotStated across the categories
// in proportion to their known counts. If the known counts sum to zero,
// the known counts are returned unchanged.
func FinalCounts(c *Counts, d *DatasetConfig) []int {
	known := make([]float64, len(d.Categories))
	for i, cat := range d.Categories {
		known[i] = float64(c.Categories[cat.Name])
	}
	var notStated float64
	if d.NotStated != nil && c.HasNotStated {
		notStated = float64(c.NotStated)
	}
	total := floats.Sum(known)
	o := make([]int, len(known))
	for i, k := range known {
		if total > 0 {
			o[i] = int(math.Round(k + k/total*notStated))
		} else {
			o[i] = int(k)
		}
	}
	return o
}

// RandomPoint returns a point drawn uniformly from the bounding box of g
// that lies strictly inside g. Points on the boundary are rejected. After
// MaxAttempts failed draws, ok is false.
func RandomPoint(g geom.Polygonal, r *rand.Rand) (p geom.Point, ok bool) {
	b := g.Bounds()
	if b == nil || b.Empty() {
		return p, false
	}
	dx := b.Max.X - b.Min.X
	dy := b.Max.Y - b.Min.Y
	for i := 0; i < MaxAttempts; i++ {
		p = geom.Point{
			X: b.Min.X + r.Float64()*dx,
			Y: b.Min.Y + r.Float64()*dy,
		}
		if p.Within(g) == geom.Inside {
			return p, true
		}
	}
	return geom.Point{}, false
}

// areaDots samples the dots for a single area. Datasets are visited in
// sorted order and categories in configuration order.
func (s *Sampler) areaDots(a *SmallArea, names []string, r *rand.Rand) (dots []Dot, requested int) {
	if a.Polygonal == nil {
		return nil, 0
	}
	for _, name := range names {
		c, ok := a.Population[name]
		if !ok {
			continue
		}
		d := s.Datasets[name]
		for i, n := range FinalCounts(c, d) {
			requested += n
			cat := d.Categories[i].Name
			for j := 0; j < n; j++ {
				p, ok := RandomPoint(a.Polygonal, r)
				if !ok {
					continue
				}
				dots = append(dots, Dot{Point: p, Dataset: name, Category: cat})
			}
		}
	}
	return dots, requested
}

// Sample places one dot per person in each area, in parallel across
// areas, and shuffles the result so that no category is systematically
// drawn on top of another. Each area draws from its own generator seeded
// from s.Seed and the area's position, so the output does not depend on
// the number of processors.
func (s *Sampler) Sample(areas []*SmallArea) ([]Dot, SampleStats) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	names := datasetNames(s.Datasets)

	perArea := make([][]Dot, len(areas))
	requested := make([]int, len(areas))
	ncpu := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(ncpu)
	for p := 0; p < ncpu; p++ {
		go func(p int) {
			for i := p; i < len(areas); i += ncpu {
				r := rand.New(rand.NewSource(seed + int64(i) + 1))
				perArea[i], requested[i] = s.areaDots(areas[i], names, r)
			}
			wg.Done()
		}(p)
	}
	wg.Wait()

	stats := SampleStats{Seed: seed}
	for i := range perArea {
		stats.Requested += requested[i]
		stats.Placed += len(perArea[i])
	}
	dots := make([]Dot, 0, stats.Placed)
	for _, d := range perArea {
		dots = append(dots, d...)
	}
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(dots), func(i, j int) { dots[i], dots[j] = dots[j], dots[i] })

	log.WithFields(logrus.Fields{
		"areas":     len(areas),
		"requested": stats.Requested,
		"placed":    stats.Placed,
		"dropped":   stats.Dropped(),
		"seed":      seed,
	}).Info("sampled dots")
	return dots, stats
}

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
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultTileSize is the default tile edge length in pixels.
const DefaultTileSize = 256

// MaxZoom is the largest supported zoom level.
const MaxZoom = 30

// ParseColor parses a hex color of the form "#rrggbb" or "rrggbb".
func ParseColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("dotmap: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("dotmap: invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// TileCoord returns the Web Mercator tile containing the point (lon, lat)
// at zoom level z, and the pixel within that tile, for tiles with
// edge length tileSize. ok is false for points outside the tile grid.
func TileCoord(lon, lat float64, z, tileSize int) (t maptile.Tile, px, py int, ok bool) {
	n := math.Exp2(float64(z))
	phi := lat * math.Pi / 180
	xt := (lon + 180) / 360 * n
	yt := (1 - math.Log(math.Tan(phi)+1/math.Cos(phi))/math.Pi) / 2 * n
	if !(xt >= 0 && xt < n && yt >= 0 && yt < n) {
		return t, 0, 0, false
	}
	tx, ty := math.Floor(xt), math.Floor(yt)
	px = int((xt - tx) * float64(tileSize))
	py = int((yt - ty) * float64(tileSize))
	if px >= tileSize {
		px = tileSize - 1
	}
	if py >= tileSize {
		py = tileSize - 1
	}
	return maptile.New(uint32(tx), uint32(ty), maptile.Zoom(z)), px, py, true
}

// TilePath returns the location of the image for tile t of the
// given dataset under dir.
func TilePath(dir, dataset string, t maptile.Tile) string {
	return filepath.Join(dir, dataset, strconv.Itoa(int(t.Z)), strconv.Itoa(int(t.X)),
		strconv.Itoa(int(t.Y))+".png")
}

// Rasterizer draws dots into a tile pyramid of PNG images, stored as
// {Dir}/{dataset}/{z}/{x}/{y}.png.
type Rasterizer struct {
	Dir string

	// MinZoom and MaxZoom are the inclusive range of zoom levels to draw.
	MinZoom, MaxZoom int

	// TileSize is the tile edge length in pixels. If zero,
	// DefaultTileSize is used.
	TileSize int

	// Datasets gives the dot colors for each category.
	Datasets map[string]*DatasetConfig

	// Log receives progress messages and tile write failures. If nil,
	// the standard logger is used.
	Log logrus.FieldLogger
}

// RenderStats summarizes a rendering run.
type RenderStats struct {
	// Tiles is the number of tiles written.
	Tiles int64

	// Failed is the number of tiles that could not be written.
	Failed int64

	// Skipped is the number of dot placements that were not drawn
	// because the dot's category has no color or the dot is outside
	// the tile grid. It is counted once per zoom level.
	Skipped int64
}

func (r *Rasterizer) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Rasterizer) tileSize() int {
	if r.TileSize <= 0 {
		return DefaultTileSize
	}
	return r.TileSize
}

// palettes returns the color of each category of each dataset.
func (r *Rasterizer) palettes() (map[string]map[string]color.NRGBA, error) {
	o := make(map[string]map[string]color.NRGBA, len(r.Datasets))
	for name, d := range r.Datasets {
		p := make(map[string]color.NRGBA, len(d.Categories))
		for _, c := range d.Categories {
			col, err := ParseColor(c.Color)
			if err != nil {
				return nil, fmt.Errorf("dotmap: dataset %s category %s: %w", name, c.Name, err)
			}
			p[c.Name] = col
		}
		o[name] = p
	}
	return o, nil
}

// Render draws the dots into tiles at each zoom level, one goroutine per
// zoom level, and writes the tiles to disk. Within a tile, later dots
// are drawn over earlier ones. Tiles with no dots are not written.
// A tile that cannot be written is logged and counted but does not stop
// rendering; an error is only returned for invalid settings.
func (r *Rasterizer) Render(dots []Dot) (*RenderStats, error) {
	if r.MinZoom < 0 || r.MaxZoom > MaxZoom || r.MinZoom > r.MaxZoom {
		return nil, fmt.Errorf("dotmap: invalid zoom range %d-%d", r.MinZoom, r.MaxZoom)
	}
	palettes, err := r.palettes()
	if err != nil {
		return nil, err
	}
	byDataset := make(map[string][]int)
	for i, d := range dots {
		byDataset[d.Dataset] = append(byDataset[d.Dataset], i)
	}

	stats := new(RenderStats)
	ncpu := runtime.GOMAXPROCS(0)
	var g errgroup.Group
	g.SetLimit(ncpu)
	for z := r.MinZoom; z <= r.MaxZoom; z++ {
		z := z
		g.Go(func() error {
			for _, name := range datasetNames(r.Datasets) {
				r.renderZoom(z, name, dots, byDataset[name], palettes[name], stats, ncpu)
			}
			r.log().WithFields(logrus.Fields{"zoom": z}).Info("rendered zoom level")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.log().WithFields(logrus.Fields{
		"tiles":   stats.Tiles,
		"failed":  stats.Failed,
		"skipped": stats.Skipped,
	}).Info("finished rendering tiles")
	return stats, nil
}

// renderZoom draws the dots at indices idx of one dataset at zoom level z
// and writes the resulting tiles in parallel.
func (r *Rasterizer) renderZoom(z int, dataset string, dots []Dot, idx []int,
	palette map[string]color.NRGBA, stats *RenderStats, ncpu int) {
	size := r.tileSize()
	tiles := make(map[maptile.Tile]*image.NRGBA)
	var skipped int64
	for _, i := range idx {
		d := dots[i]
		c, ok := palette[d.Category]
		if !ok {
			skipped++
			continue
		}
		t, px, py, ok := TileCoord(d.X, d.Y, z, size)
		if !ok {
			skipped++
			continue
		}
		img, ok := tiles[t]
		if !ok {
			img = image.NewNRGBA(image.Rect(0, 0, size, size))
			tiles[t] = img
		}
		img.SetNRGBA(px, py, c)
	}
	atomic.AddInt64(&stats.Skipped, skipped)

	var g errgroup.Group
	g.SetLimit(ncpu)
	for t, img := range tiles {
		t, img := t, img
		g.Go(func() error {
			path := TilePath(r.Dir, dataset, t)
			if err := writePNG(path, img); err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				r.log().WithFields(logrus.Fields{
					"tile":  path,
					"error": err,
				}).Error("failed to write tile")
				return nil
			}
			atomic.AddInt64(&stats.Tiles, 1)
			return nil
		})
	}
	g.Wait()
}

// writePNG writes img to path, creating any missing directories.
func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

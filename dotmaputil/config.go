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
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/dotmap"
	"github.com/spf13/cast"
)

// Config holds the settings for generating and serving tiles.
type Config struct {
	GeometryFile, DataFile string

	// JoinColumnGeometry and JoinColumnData are the
	// small-area identifier columns in GeometryFile and DataFile.
	JoinColumnGeometry, JoinColumnData string

	WaterMask string

	TileDir          string
	MinZoom, MaxZoom int
	TileSize         int
	ImageExt         string

	Seed int64

	Address   string
	WebRoot   string
	CacheSize int

	Datasets map[string]*dotmap.DatasetConfig
}

// datasetFile is the part of the configuration file holding the
// dataset definitions, for example:
//
//	[Processing.Datasets.race]
//	Categories = [
//	  {Name = "White", Color = "#1f77b4", Columns = ["white"]},
//	  {Name = "Other", Color = "#ff7f0e", Columns = ["asian", "other"]},
//	]
//	NotStated = {Column = "not_stated"}
type datasetFile struct {
	Processing struct {
		Datasets map[string]*dotmap.DatasetConfig
	}
}

// loadDatasets reads the dataset definitions from the TOML file f.
func loadDatasets(f string) (map[string]*dotmap.DatasetConfig, error) {
	r, err := os.Open(f)
	if err != nil {
		return nil, fmt.Errorf("dotmaputil: opening configuration file: %w", err)
	}
	defer r.Close()
	var d datasetFile
	if _, err := toml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("dotmaputil: decoding datasets: %w", err)
	}
	return d.Processing.Datasets, nil
}

// ReadConfig reads the configuration held in cfg, including the dataset
// definitions in the configuration file, and checks it for errors.
func ReadConfig(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		GeometryFile:       os.ExpandEnv(cfg.GetString("Input.GeometryFile")),
		DataFile:           os.ExpandEnv(cfg.GetString("Input.DataFile")),
		JoinColumnGeometry: cfg.GetString("Input.JoinColumnGeometry"),
		JoinColumnData:     cfg.GetString("Input.JoinColumnData"),
		WaterMask:          os.ExpandEnv(cfg.GetString("Input.WaterMask")),
		TileDir:            os.ExpandEnv(cfg.GetString("Output.TileDir")),
		ImageExt:           strings.ToLower(strings.TrimPrefix(cfg.GetString("Output.ImageExt"), ".")),
		Address:            cfg.GetString("Server.Address"),
		WebRoot:            os.ExpandEnv(cfg.GetString("Server.WebRoot")),
	}
	var err error
	ints := []struct {
		name string
		v    *int
	}{
		{"Output.MinZoom", &c.MinZoom},
		{"Output.MaxZoom", &c.MaxZoom},
		{"Output.TileSize", &c.TileSize},
		{"Server.CacheSize", &c.CacheSize},
	}
	for _, i := range ints {
		if *i.v, err = cast.ToIntE(cfg.Get(i.name)); err != nil {
			return nil, fmt.Errorf("dotmaputil: reading %s: %v", i.name, err)
		}
	}
	if c.Seed, err = cast.ToInt64E(cfg.Get("Processing.Seed")); err != nil {
		return nil, fmt.Errorf("dotmaputil: reading Processing.Seed: %v", err)
	}

	if f := cfg.GetString("config"); f != "" {
		if c.Datasets, err = loadDatasets(os.ExpandEnv(f)); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	for _, s := range []struct{ name, v string }{
		{"Input.GeometryFile", c.GeometryFile},
		{"Input.DataFile", c.DataFile},
		{"Input.JoinColumnGeometry", c.JoinColumnGeometry},
		{"Input.JoinColumnData", c.JoinColumnData},
		{"Output.TileDir", c.TileDir},
	} {
		if s.v == "" {
			return fmt.Errorf("dotmaputil: %s must be specified", s.name)
		}
	}
	if c.MinZoom < 0 || c.MaxZoom > dotmap.MaxZoom || c.MinZoom > c.MaxZoom {
		return fmt.Errorf("dotmaputil: invalid zoom range %d-%d; must satisfy 0 <= MinZoom <= MaxZoom <= %d",
			c.MinZoom, c.MaxZoom, dotmap.MaxZoom)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("dotmaputil: Output.TileSize must be positive, not %d", c.TileSize)
	}
	if c.ImageExt != "png" {
		return fmt.Errorf("dotmaputil: unsupported Output.ImageExt %q; only png is supported", c.ImageExt)
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("dotmaputil: no datasets are specified in Processing.Datasets")
	}
	for name, d := range c.Datasets {
		if d == nil || len(d.Categories) == 0 {
			return fmt.Errorf("dotmaputil: dataset %s has no categories", name)
		}
		seen := make(map[string]bool)
		for _, cat := range d.Categories {
			if cat.Name == "" {
				return fmt.Errorf("dotmaputil: dataset %s has a category with no name", name)
			}
			if seen[cat.Name] {
				return fmt.Errorf("dotmaputil: dataset %s has duplicate category %s", name, cat.Name)
			}
			seen[cat.Name] = true
			if _, err := dotmap.ParseColor(cat.Color); err != nil {
				return fmt.Errorf("dotmaputil: dataset %s category %s: %v", name, cat.Name, err)
			}
		}
		if d.NotStated != nil && d.NotStated.Column == "" {
			return fmt.Errorf("dotmaputil: dataset %s: NotStated.Column must be specified", name)
		}
	}
	return nil
}

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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/dotmap"
)

func testConfig(t *testing.T) *Config {
	c := validConfig()
	c.GeometryFile = "../testdata/areas.geojson"
	c.DataFile = "../testdata/population.csv"
	c.WaterMask = "../testdata/water.geojson"
	c.TileDir = t.TempDir()
	c.MaxZoom = 2
	c.Seed = 1
	c.CacheSize = 10
	c.Datasets = map[string]*dotmap.DatasetConfig{
		"race": {
			Categories: []dotmap.CategoryConfig{
				{Name: "White", Color: "#1f77b4", Columns: []string{"white"}},
				{Name: "Other", Color: "#2ca02c", Columns: []string{"black", "asian", "other"}},
			},
			NotStated: &dotmap.NotStatedConfig{Column: "not_stated"},
		},
	}
	return c
}

func TestGenerate(t *testing.T) {
	c := testConfig(t)
	if err := Generate(c, logrus.New()); err != nil {
		t.Fatal(err)
	}
	// All of the areas are near (0, 0) in the north-east quadrant.
	for _, f := range []string{"race/0/0/0.png", "race/1/1/0.png", "race/2/2/1.png"} {
		if _, err := os.Stat(filepath.Join(c.TileDir, filepath.FromSlash(f))); err != nil {
			t.Error(err)
		}
	}
}

func TestNewServer(t *testing.T) {
	c := testConfig(t)
	srv, err := NewServer(c, prometheus.NewRegistry(), logrus.New())
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/query?lat=0.5&lon=0.75")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var r dotmap.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatal(err)
	}
	// The server uses the original geometry, so water is not removed.
	if r.ID != "X001" {
		t.Errorf("id: got %s, want X001", r.ID)
	}
	if got := r.PopulationData["race"]["White"]; got != 10 {
		t.Errorf("White: got %d, want 10", got)
	}
}

func TestCommands(t *testing.T) {
	t.Run("version", func(t *testing.T) {
		var buf bytes.Buffer
		Root.SetOut(&buf)
		defer Root.SetOut(nil)
		Root.SetArgs([]string{"version"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "dotmap v"+dotmap.Version) {
			t.Errorf("unexpected output %q", buf.String())
		}
	})
	t.Run("generate", func(t *testing.T) {
		dir := t.TempDir()
		Cfg.Set("config", "testdata/config.toml")
		Cfg.Set("Output.TileDir", dir)
		Cfg.Set("Output.MaxZoom", 1)
		Root.SetOut(&bytes.Buffer{})
		defer Root.SetOut(nil)
		Root.SetArgs([]string{"generate"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		for _, f := range []string{"race/0/0/0.png", "total/1/1/0.png"} {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f))); err != nil {
				t.Error(err)
			}
		}
	})
}

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

// Package dotmaputil holds the command-line interface and configuration
// handling for dotmap.
package dotmaputil

import (
	"fmt"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/dotmap"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to dotmap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location. The dataset
              and category definitions (Processing.Datasets) can only be
              given in the configuration file.`,
			shorthand:  "c",
			defaultVal: "config.toml",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print:
              debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Input.GeometryFile",
			usage: `
              Input.GeometryFile is the path to the small-area polygons, either
              a shapefile (.shp) or a GeoJSON FeatureCollection (.json or .geojson),
              in longitude/latitude coordinates. It can include environment
              variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "Input.DataFile",
			usage: `
              Input.DataFile is the path to the population table (.csv, .tsv,
              or .xlsx). The first row must hold the column names. It can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "Input.JoinColumnGeometry",
			usage: `
              Input.JoinColumnGeometry is the shapefile attribute or GeoJSON
              property holding the small-area identifier.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "Input.JoinColumnData",
			usage: `
              Input.JoinColumnData is the population table column holding the
              small-area identifier.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "Input.WaterMask",
			usage: `
              Input.WaterMask is an optional GeoJSON FeatureCollection of water
              polygons to remove from the small areas before placing dots.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Output.TileDir",
			usage: `
              Output.TileDir is the directory where tiles are written and
              from which they are served.`,
			defaultVal: "tiles",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "Output.MinZoom",
			usage: `
              Output.MinZoom is the lowest zoom level to create tiles for.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Output.MaxZoom",
			usage: `
              Output.MaxZoom is the highest zoom level to create tiles for.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Output.TileSize",
			usage: `
              Output.TileSize is the tile edge length in pixels.`,
			defaultVal: dotmap.DefaultTileSize,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Output.ImageExt",
			usage: `
              Output.ImageExt is the tile image format. Only "png" is supported.`,
			defaultVal: "png",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Processing.Seed",
			usage: `
              Processing.Seed seeds the random dot placement. Runs with the
              same nonzero seed and inputs create identical tiles. If 0,
              the seed is taken from the clock.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Server.Address",
			usage: `
              Server.Address is the host:port the server listens on.`,
			defaultVal: "127.0.0.1:3000",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "Server.WebRoot",
			usage: `
              Server.WebRoot is an optional directory of static files
              (e.g., a web map page) served at the server root.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "Server.CacheSize",
			usage: `
              Server.CacheSize is the number of query results to keep in memory.`,
			defaultVal: 10000,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("DOTMAP")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(generateCmd)
	Root.AddCommand(serveCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("dotmap: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("dotmap: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "dotmap",
	Short: "A dot-density map tile generator.",
	Long: `dotmap creates dot-density map tiles from small-area population counts,
with one dot per person, and serves them along with small-area lookups.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'DOTMAP_var' where 'var' is the
name of the variable to be set, with '.' replaced by '_' (e.g., DOTMAP_OUTPUT_MAXZOOM). Paths are allowed to contain environment variables.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	SilenceUsage:      true,
	SilenceErrors:     true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of dotmap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("dotmap v%s\n", dotmap.Version)
	},
	// version does not need a configuration file.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	DisableAutoGenTag: true,
}

// generateCmd is a command that creates the tile pyramid.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create dot-density tiles.",
	Long: `generate joins the small-area geometry to the population table,
optionally removes water, places one dot per person, and writes the
dot-density tiles to Output.TileDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ReadConfig(Cfg)
		if err != nil {
			return err
		}
		cmd.Println("\n" +
			"------------------------------------------------\n" +
			"                    Welcome!\n" +
			"        dotmap: dot-density map tiles\n" +
			"                Version " + dotmap.Version + "\n" +
			"------------------------------------------------")
		if err := Generate(c, logrus.StandardLogger()); err != nil {
			return err
		}
		cmd.Println("dotmap: tile generation completed successfully.")
		return nil
	},
	DisableAutoGenTag: true,
}

// serveCmd is a command that starts the web server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tiles and small-area queries.",
	Long: `serve loads the small-area geometry and population table and starts
a web server that answers /api/query?lat=..&lon=.. requests and serves the
tiles in Output.TileDir under /tiles/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ReadConfig(Cfg)
		if err != nil {
			return err
		}
		return Serve(c, logrus.StandardLogger())
	},
	DisableAutoGenTag: true,
}

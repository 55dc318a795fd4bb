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

// Command dotmap is a command-line interface for creating and serving
// dot-density map tiles.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/dotmap/dotmaputil"
)

func main() {
	if err := dotmaputil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

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

// Package hash creates cache keys for request payloads.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// printer writes a deterministic representation of values that gob
// cannot encode.
var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Hash returns a key for object. Objects that implement fmt.Stringer are
// keyed by their String value; all others by a 128-bit FNV-1a hash of
// their gob encoding, or of their spew dump if gob fails.
func Hash(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return s.String()
	}
	h := fnv.New128a()
	if err := gob.NewEncoder(h).Encode(object); err != nil {
		h.Reset()
		printer.Fprintf(h, "%#v", object)
	}
	return sum(h)
}

func sum(h hash.Hash) string {
	return fmt.Sprintf("%x", h.Sum(nil))
}

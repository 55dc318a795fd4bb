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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx"
)

// rowFunc receives one data row of a table.
type rowFunc func(row []string) error

// readTable calls f for each data row of the table in file, after
// passing the header row to header. Comma-, tab-separated, and
// xlsx files are supported.
func readTable(file string, header func([]string) error, f rowFunc) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx":
		return readExcel(file, header, f)
	case ".tsv", ".tab":
		return readDelimited(file, '\t', header, f)
	default:
		return readDelimited(file, ',', header, f)
	}
}

func readDelimited(file string, comma rune, header func([]string) error, f rowFunc) error {
	r, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("dotmap: opening table: %w", err)
	}
	defer r.Close()
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	h, err := cr.Read()
	if err != nil {
		return fmt.Errorf("dotmap: reading header of %s: %w", file, err)
	}
	if len(h) > 0 {
		h[0] = strings.TrimPrefix(h[0], "\ufeff")
	}
	if err := header(h); err != nil {
		return err
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("dotmap: reading %s: %w", file, err)
		}
		if err := f(rec); err != nil {
			return err
		}
	}
}

// readExcel reads the first sheet of an Excel file, in which the first row
// holds the column names.
func readExcel(file string, header func([]string) error, f rowFunc) error {
	x, err := xlsx.OpenFile(file)
	if err != nil {
		return fmt.Errorf("dotmap: opening table: %w", err)
	}
	if len(x.Sheets) == 0 {
		return fmt.Errorf("dotmap: %s has no worksheets", file)
	}
	s := x.Sheets[0]
	for i, row := range s.Rows {
		if row == nil {
			continue
		}
		vals := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			if c != nil {
				vals[j] = c.Value
			}
		}
		if i == 0 {
			if err := header(vals); err != nil {
				return err
			}
			continue
		}
		if err := f(vals); err != nil {
			return err
		}
	}
	if len(s.Rows) == 0 {
		return fmt.Errorf("dotmap: %s: worksheet %s is empty", file, s.Name)
	}
	return nil
}

// s2c converts a table cell to a count. Cells that are empty or
// cannot be parsed count as zero.
func s2c(s string) int {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseUint(s, 10, 32); err == nil {
		return int(v)
	}
	// Spreadsheets sometimes store integers as "12.0".
	if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 && v <= math.MaxUint32 && v == math.Trunc(v) {
		return int(v)
	}
	return 0
}

// LoadTable reads population counts from the table in file. The returned
// map is keyed by the value in joinColumn and then by dataset name.
// Each category count is the sum of the category's columns; columns that
// are missing from the table or values that cannot be parsed count as
// zero. Rows with an empty key are skipped, and when a key appears more
// than once the last row wins.
func LoadTable(file, joinColumn string, datasets map[string]*DatasetConfig, log logrus.FieldLogger) (map[string]map[string]*Counts, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	colIndex := make(map[string]int)
	keyCol := -1
	header := func(h []string) error {
		for i, c := range h {
			c = strings.TrimSpace(c)
			if _, ok := colIndex[c]; !ok {
				colIndex[c] = i
			}
			if c == joinColumn && keyCol < 0 {
				keyCol = i
			}
		}
		if keyCol < 0 {
			return fmt.Errorf("dotmap: join column %q not found in %s", joinColumn, file)
		}
		return nil
	}

	cell := func(row []string, col string) (string, bool) {
		i, ok := colIndex[col]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	o := make(map[string]map[string]*Counts)
	var rows, skipped, duplicates int
	err := readTable(file, header, func(row []string) error {
		rows++
		if keyCol >= len(row) {
			skipped++
			return nil
		}
		key := strings.TrimSpace(row[keyCol])
		if key == "" {
			skipped++
			return nil
		}
		pop := make(map[string]*Counts, len(datasets))
		for name, d := range datasets {
			c := &Counts{Categories: make(map[string]int, len(d.Categories))}
			for _, cat := range d.Categories {
				var sum int
				for _, col := range cat.Columns {
					if v, ok := cell(row, col); ok {
						sum += s2c(v)
					}
				}
				c.Categories[cat.Name] = sum
			}
			if d.NotStated != nil {
				if v, ok := cell(row, d.NotStated.Column); ok {
					c.NotStated = s2c(v)
					c.HasNotStated = true
				}
			}
			pop[name] = c
		}
		if _, ok := o[key]; ok {
			duplicates++
		}
		o[key] = pop
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"file":       file,
		"rows":       rows,
		"keys":       len(o),
		"skipped":    skipped,
		"duplicates": duplicates,
	}).Info("loaded population table")
	return o, nil
}

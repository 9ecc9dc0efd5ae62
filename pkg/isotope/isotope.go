// Package isotope holds the gamma-line lookup table used to label
// detected peaks. The table itself is supplied externally; this
// package only loads and queries it.
package isotope

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

// Line is one known gamma line: an energy in keV and a display name.
type Line struct {
	Energy float64
	Name   string
}

// Table is a read-only set of gamma lines ordered by energy.
type Table []Line

// Nearest returns the line whose energy is closest to the target,
// considering only lines within maxDelta keV. The second return value
// is false when no line lies within the window.
//
// Nearest is a pure function over the supplied table; it keeps no
// state between calls.
func Nearest(t Table, energy, maxDelta float64) (Line, bool) {
	var best Line
	bestDiff := math.Inf(1)
	found := false

	for _, line := range t {
		diff := math.Abs(line.Energy - energy)
		if diff > maxDelta {
			continue
		}
		if diff < bestDiff {
			bestDiff = diff
			best = line
			found = true
		}
	}

	return best, found
}

// LoadTable reads a JSON isotope table mapping energy (as a numeric
// string key) to a display name, e.g. {"661.66": "Cs-137"}.
// The result is sorted by energy.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read isotope table: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse isotope table: %w", err)
	}

	table := make(Table, 0, len(raw))
	for key, name := range raw {
		energy, err := strconv.ParseFloat(key, 64)
		if err != nil {
			// Non-numeric keys carry no usable energy; skip them.
			continue
		}
		table = append(table, Line{Energy: energy, Name: name})
	}

	sort.Slice(table, func(i, j int) bool { return table[i].Energy < table[j].Energy })
	return table, nil
}

// Copyright 2021 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package roi maintains named regions of interest: sets of 1-based genomic
// positions, indexed in both directions (region -> positions and position ->
// regions).  The position index is kept in a left-leaning red-black tree so
// that scanners can walk the full position set in sorted order without
// re-sorting per scan.
package roi

import (
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"
)

// ErrZeroPosition is returned when a region registers position 0.  Positions
// are 1-indexed throughout.
var ErrZeroPosition = errors.New("roi: positions are 1-indexed; position 0 is not valid")

// posEntry is one node of the position index: a position plus the set of
// region names referencing it.
type posEntry struct {
	pos     int
	regions map[string]struct{}
}

// Compare implements llrb.Comparable.
func (e *posEntry) Compare(c llrb.Comparable) int {
	return e.pos - c.(*posEntry).pos
}

// Index is a bidirectional region/position mapping.  The two directions are
// updated together; a lookup through either side always agrees with the
// other.  The zero value is not usable; call NewIndex.
type Index struct {
	byName map[string]map[int]struct{}
	byPos  llrb.Tree
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{byName: make(map[string]map[int]struct{})}
}

// AddRegion registers the given positions under the region name, creating the
// region if needed.  Re-adding a position already present in the region is a
// no-op.  If any position is 0, the index is left unchanged and
// ErrZeroPosition is returned.
func (x *Index) AddRegion(name string, positions []int) error {
	for _, pos := range positions {
		if pos == 0 {
			return errors.Wrapf(ErrZeroPosition, "region %q", name)
		}
	}
	posSet := x.byName[name]
	if posSet == nil {
		posSet = make(map[int]struct{})
		x.byName[name] = posSet
	}
	for _, pos := range positions {
		posSet[pos] = struct{}{}
		probe := &posEntry{pos: pos}
		if got := x.byPos.Get(probe); got != nil {
			got.(*posEntry).regions[name] = struct{}{}
		} else {
			probe.regions = map[string]struct{}{name: {}}
			x.byPos.Insert(probe)
		}
	}
	return nil
}

// NumRegions returns the number of registered regions.
func (x *Index) NumRegions() int {
	return len(x.byName)
}

// NumPositions returns the number of distinct positions across all regions.
func (x *Index) NumPositions() int {
	return x.byPos.Len()
}

// Regions returns all region names in lexicographic order.
func (x *Index) Regions() []string {
	names := make([]string, 0, len(x.byName))
	for name := range x.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Positions returns the sorted positions of the named region, or nil if the
// region is not registered.
func (x *Index) Positions(name string) []int {
	posSet, ok := x.byName[name]
	if !ok {
		return nil
	}
	positions := make([]int, 0, len(posSet))
	for pos := range posSet {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// RegionsAt returns the names of all regions referencing the given position,
// in lexicographic order.  The result is nil if no region covers pos.
func (x *Index) RegionsAt(pos int) []string {
	got := x.byPos.Get(&posEntry{pos: pos})
	if got == nil {
		return nil
	}
	regionSet := got.(*posEntry).regions
	names := make([]string, 0, len(regionSet))
	for name := range regionSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedPositions returns every registered position, ascending.
func (x *Index) SortedPositions() []int {
	positions := make([]int, 0, x.byPos.Len())
	x.byPos.Do(func(c llrb.Comparable) bool {
		positions = append(positions, c.(*posEntry).pos)
		return false
	})
	return positions
}

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
package vcfscan

import (
	"math"
	"sort"
)

// RegionSummary is the per-region reduction of the call table.
type RegionSummary struct {
	RoiName   string
	MeanDepth float64
	MinDepth  int
	MaxDepth  int
	Start     int
	Stop      int
	Length    int
	// MeanMAF averages the defined minor-allele frequencies of the region's
	// rows.  NaN when no row has a defined frequency.
	MeanMAF            float64
	TotalDepth         int
	TotalNonmajorDepth int
}

// Aggregate reduces the call table to one summary per region, ordered by
// region name.  It returns nil when the table is empty.
func Aggregate(rows []Row) []RegionSummary {
	if len(rows) == 0 {
		return nil
	}
	byName := make(map[string]*RegionSummary)
	mafSums := make(map[string]float64)
	mafCounts := make(map[string]int)
	for i := range rows {
		row := &rows[i]
		sum := byName[row.RoiName]
		if sum == nil {
			sum = &RegionSummary{
				RoiName:  row.RoiName,
				MinDepth: row.Depth,
				MaxDepth: row.Depth,
				Start:    row.Pos,
				Stop:     row.Pos,
			}
			byName[row.RoiName] = sum
		}
		if row.Depth < sum.MinDepth {
			sum.MinDepth = row.Depth
		}
		if row.Depth > sum.MaxDepth {
			sum.MaxDepth = row.Depth
		}
		if row.Pos < sum.Start {
			sum.Start = row.Pos
		}
		if row.Pos > sum.Stop {
			sum.Stop = row.Pos
		}
		sum.Length++
		sum.TotalDepth += row.Depth
		sum.TotalNonmajorDepth += row.Nonmajor()
		if !math.IsNaN(row.MAF) {
			mafSums[row.RoiName] += row.MAF
			mafCounts[row.RoiName]++
		}
	}
	summaries := make([]RegionSummary, 0, len(byName))
	for name, sum := range byName {
		sum.MeanDepth = float64(sum.TotalDepth) / float64(sum.Length)
		if n := mafCounts[name]; n > 0 {
			sum.MeanMAF = mafSums[name] / float64(n)
		} else {
			sum.MeanMAF = math.NaN()
		}
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].RoiName < summaries[j].RoiName
	})
	return summaries
}

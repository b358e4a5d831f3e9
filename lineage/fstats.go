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
package lineage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/pkg/errors"
)

// MinRegions is the smallest number of region summaries from which the F
// statistics are meaningful.  Fewer regions yields a bad-quality result.
const MinRegions = 58

// Quality values reported by FStatistics.
const (
	QualityOK  = "OK"
	QualityBad = "bad"
)

// FStats holds the two mixture statistics for one sample.  F2 measures the
// nonmajor fraction over the two regions with the highest mean minor-allele
// frequency; F47 measures it over the 47 regions with the lowest.  A mixed
// sample drives F2 up while F47 stays near the error rate.
type FStats struct {
	Quality string
	F2      float64
	F47     float64
}

// FStatistics reduces a sample's region summaries to its F statistics.
// Regions are ranked by mean minor-allele frequency, undefined frequencies
// last.  The result is bad when fewer than MinRegions summaries are given or
// when either group has zero total depth.
func FStatistics(summaries []vcfscan.RegionSummary) FStats {
	bad := FStats{Quality: QualityBad, F2: math.NaN(), F47: math.NaN()}
	if len(summaries) < MinRegions {
		return bad
	}
	ranked := make([]vcfscan.RegionSummary, len(summaries))
	copy(ranked, summaries)
	sort.SliceStable(ranked, func(i, j int) bool {
		mi, mj := ranked[i].MeanMAF, ranked[j].MeanMAF
		if math.IsNaN(mi) {
			return false
		}
		if math.IsNaN(mj) {
			return true
		}
		return mi > mj
	})
	f2, ok := nonmajorFraction(ranked[:2])
	if !ok {
		return bad
	}
	f47, ok := nonmajorFraction(ranked[len(ranked)-47:])
	if !ok {
		return bad
	}
	return FStats{Quality: QualityOK, F2: f2, F47: f47}
}

func nonmajorFraction(summaries []vcfscan.RegionSummary) (float64, bool) {
	var depth, nonmajor int
	for i := range summaries {
		depth += summaries[i].TotalDepth
		nonmajor += summaries[i].TotalNonmajorDepth
	}
	if depth == 0 {
		return 0, false
	}
	return float64(nonmajor) / float64(depth), true
}

// summaryColumns is the exact column set of a persisted region-summary table
// with a sample identifier.  Reload refuses tables with any other shape.
var summaryColumns = []string{
	"roi_name", "mean_depth", "min_depth", "max_depth", "start", "stop",
	"length", "mean_maf", "total_depth", "total_nonmajor_depth", "guid",
}

type summaryTSVRow struct {
	RoiName            string `tsv:"roi_name"`
	MeanDepth          string `tsv:"mean_depth"`
	MinDepth           int64  `tsv:"min_depth"`
	MaxDepth           int64  `tsv:"max_depth"`
	Start              int64  `tsv:"start"`
	Stop               int64  `tsv:"stop"`
	Length             int64  `tsv:"length"`
	MeanMAF            string `tsv:"mean_maf"`
	TotalDepth         int64  `tsv:"total_depth"`
	TotalNonmajorDepth int64  `tsv:"total_nonmajor_depth"`
	Guid               string `tsv:"guid"`
}

func parseNullableFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadRegionSummaries reloads a region-summary table written by
// vcfscan.WriteRegionSummariesFile with a nonempty guid.  It returns the
// summaries and the sample identifier, decompressing transparently.
func ReadRegionSummaries(ctx context.Context, path string) (summaries []vcfscan.RegionSummary, guid string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, "", err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	all, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrapf(err, "lineage: reading %s", path)
	}
	header := all
	if i := bytes.IndexByte(all, '\n'); i >= 0 {
		header = all[:i]
	}
	if got := strings.Split(string(header), "\t"); !equalColumns(got, summaryColumns) {
		return nil, "", errors.Errorf("lineage: %s: unexpected columns %v", path, got)
	}
	tr := tsv.NewReader(bytes.NewReader(all))
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	for {
		var raw summaryTSVRow
		if err := tr.Read(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, "", errors.Wrapf(err, "lineage: reading %s", path)
		}
		meanDepth, err := parseNullableFloat(raw.MeanDepth)
		if err != nil {
			return nil, "", errors.Wrapf(err, "lineage: bad mean_depth for %s", raw.RoiName)
		}
		meanMAF, err := parseNullableFloat(raw.MeanMAF)
		if err != nil {
			return nil, "", errors.Wrapf(err, "lineage: bad mean_maf for %s", raw.RoiName)
		}
		if guid == "" {
			guid = raw.Guid
		} else if raw.Guid != guid {
			return nil, "", errors.Errorf("lineage: %s: mixed sample identifiers %q and %q", path, guid, raw.Guid)
		}
		summaries = append(summaries, vcfscan.RegionSummary{
			RoiName:            raw.RoiName,
			MeanDepth:          meanDepth,
			MinDepth:           int(raw.MinDepth),
			MaxDepth:           int(raw.MaxDepth),
			Start:              int(raw.Start),
			Stop:               int(raw.Stop),
			Length:             int(raw.Length),
			MeanMAF:            meanMAF,
			TotalDepth:         int(raw.TotalDepth),
			TotalNonmajorDepth: int(raw.TotalNonmajorDepth),
		})
	}
	return summaries, guid, nil
}

func equalColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

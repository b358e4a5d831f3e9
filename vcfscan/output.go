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
	"context"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/pkg/errors"
)

// Text renderings of the two tables.  Float cells are 'g'-formatted; an
// undefined (NaN) value renders as an empty cell and reads back as NaN.

const callHeader = "roi_name\tpos\tref\tdepth\tbase_a\tbase_c\tbase_g\tbase_t\tmaf\tmlp"

func writeFloatCell(w *tsv.Writer, v float64) {
	if math.IsNaN(v) {
		w.WriteString("")
		return
	}
	w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
}

func parseFloatCell(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteRows writes the call table with its header line.
func WriteRows(w io.Writer, rows []Row) error {
	tw := tsv.NewWriter(w)
	tw.WriteString(callHeader)
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i := range rows {
		row := &rows[i]
		tw.WriteString(row.RoiName)
		tw.WriteUint32(uint32(row.Pos))
		tw.WriteString(row.Ref)
		tw.WriteUint32(uint32(row.Depth))
		tw.WriteUint32(uint32(row.BaseA))
		tw.WriteUint32(uint32(row.BaseC))
		tw.WriteUint32(uint32(row.BaseG))
		tw.WriteUint32(uint32(row.BaseT))
		writeFloatCell(tw, row.MAF)
		writeFloatCell(tw, row.MLP)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// callTSVRow mirrors one call-table line.  The nullable columns are read as
// strings and parsed afterwards.
type callTSVRow struct {
	RoiName string `tsv:"roi_name"`
	Pos     int64  `tsv:"pos"`
	Ref     string `tsv:"ref"`
	Depth   int64  `tsv:"depth"`
	BaseA   int64  `tsv:"base_a"`
	BaseC   int64  `tsv:"base_c"`
	BaseG   int64  `tsv:"base_g"`
	BaseT   int64  `tsv:"base_t"`
	MAF     string `tsv:"maf"`
	MLP     string `tsv:"mlp"`
}

// ReadRows reads a call table written by WriteRows.
func ReadRows(r io.Reader) ([]Row, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	var rows []Row
	for {
		var raw callTSVRow
		if err := tr.Read(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "reading call table")
		}
		maf, err := parseFloatCell(raw.MAF)
		if err != nil {
			return nil, errors.Wrapf(err, "bad maf at position %d", raw.Pos)
		}
		mlp, err := parseFloatCell(raw.MLP)
		if err != nil {
			return nil, errors.Wrapf(err, "bad mlp at position %d", raw.Pos)
		}
		rows = append(rows, Row{
			RoiName: raw.RoiName,
			Pos:     int(raw.Pos),
			Ref:     raw.Ref,
			Depth:   int(raw.Depth),
			BaseA:   int(raw.BaseA),
			BaseC:   int(raw.BaseC),
			BaseG:   int(raw.BaseG),
			BaseT:   int(raw.BaseT),
			MAF:     maf,
			MLP:     mlp,
		})
	}
	return rows, nil
}

// WriteRegionSummaries writes the region-summary table.  When guid is
// nonempty a sample-identifier column is appended to every row.
func WriteRegionSummaries(w io.Writer, summaries []RegionSummary, guid string) error {
	tw := tsv.NewWriter(w)
	header := "roi_name\tmean_depth\tmin_depth\tmax_depth\tstart\tstop\tlength\tmean_maf\ttotal_depth\ttotal_nonmajor_depth"
	if guid != "" {
		header += "\tguid"
	}
	tw.WriteString(header)
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i := range summaries {
		sum := &summaries[i]
		tw.WriteString(sum.RoiName)
		writeFloatCell(tw, sum.MeanDepth)
		tw.WriteUint32(uint32(sum.MinDepth))
		tw.WriteUint32(uint32(sum.MaxDepth))
		tw.WriteUint32(uint32(sum.Start))
		tw.WriteUint32(uint32(sum.Stop))
		tw.WriteUint32(uint32(sum.Length))
		writeFloatCell(tw, sum.MeanMAF)
		tw.WriteUint32(uint32(sum.TotalDepth))
		tw.WriteUint32(uint32(sum.TotalNonmajorDepth))
		if guid != "" {
			tw.WriteString(guid)
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// openOutput creates path and optionally stacks a bgzip writer on top, the
// way the pileup tools emit .tsv.gz.  The returned closer finishes both
// layers.
func openOutput(ctx context.Context, path string, bgzip bool) (io.Writer, func() error, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if !bgzip {
		return out.Writer(ctx), func() error { return out.Close(ctx) }, nil
	}
	bw := bgzf.NewWriter(out.Writer(ctx), 1)
	closer := func() error {
		err := bw.Close()
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
		return err
	}
	return bw, closer, nil
}

// WriteRowsFile writes the call table to path, bgzip-compressed when asked.
func WriteRowsFile(ctx context.Context, path string, rows []Row, bgzip bool) error {
	w, closer, err := openOutput(ctx, path, bgzip)
	if err != nil {
		return err
	}
	err = WriteRows(w, rows)
	if e := closer(); e != nil && err == nil {
		err = e
	}
	return err
}

// WriteRegionSummariesFile writes the region-summary table to path.
func WriteRegionSummariesFile(ctx context.Context, path string, summaries []RegionSummary, guid string, bgzip bool) error {
	w, closer, err := openOutput(ctx, path, bgzip)
	if err != nil {
		return err
	}
	err = WriteRegionSummaries(w, summaries, guid)
	if e := closer(); e != nil && err == nil {
		err = e
	}
	return err
}

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

// Package vcfscan extracts per-base depth evidence at a predefined set of
// genomic positions from a sorted variant-call text stream, in a single
// pass.  The sorted position set and the sorted stream are merged with two
// monotonic cursors; positions absent from the stream are skipped via a
// catch-up step.  Matched positions become one table row per referencing
// region, with minor-allele frequency and an optional binomial significance
// score attached.
package vcfscan

import (
	"bufio"
	"context"
	"io"
	"math"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/mixscan/binomial"
	"github.com/grailbio/mixscan/roi"
)

// Opts configures a Scanner.  Start from DefaultOpts.
type Opts struct {
	// ErrorRate is the expected per-base background error rate, used by the
	// significance test.  Must be in (0, 1).
	ErrorRate float64
	// Tag selects the depth-tag convention: TagAuto, TagAlleleDepth, or the
	// name of a four-count info tag (DefaultInfoTag by default).
	Tag string
	// MinMAF drops rows whose minor-allele frequency is below the threshold.
	// When positive, rows with no defined frequency (zero depth) are dropped
	// too.
	MinMAF float64
	// ComputePValue enables the per-position binomial significance test.
	ComputePValue bool
}

// DefaultOpts holds the usual scan configuration: a Q30-grade error rate,
// the GATK four-count tag, no frequency floor.
var DefaultOpts = Opts{
	ErrorRate:     0.001,
	Tag:           DefaultInfoTag,
	MinMAF:        0,
	ComputePValue: true,
}

// Row is one reported call: a matched position paired with one region that
// references it.
type Row struct {
	RoiName string
	Pos     int
	Ref     string
	Depth   int
	BaseA   int
	BaseC   int
	BaseG   int
	BaseT   int
	// MAF is the minor-allele frequency: second-highest base depth over
	// total depth.  NaN when the total depth is zero.
	MAF float64
	// MLP is the -log10(p) significance score.  NaN when the p-value was
	// not computed.
	MLP float64
}

// Depths returns the row's four base depths in fixed order.
func (r *Row) Depths() Depths {
	return Depths{r.BaseA, r.BaseC, r.BaseG, r.BaseT}
}

// Nonmajor returns the depth not supporting the single most common base.
func (r *Row) Nonmajor() int {
	return r.Depth - r.Depths().sortedDesc()[0]
}

// Result is the outcome of one scan.  Complete is false when the underlying
// stream failed mid-read (a truncated gzip member, typically); rows
// collected before the failure are retained, so callers can tell a broken
// file apart from a clean scan with zero matches.
type Result struct {
	Rows     []Row
	Complete bool
}

// Scanner runs position-synchronized scans of variant streams against a
// region index.  The depth-tag strategy resolved during the first scan
// (under TagAuto) is kept for the Scanner's lifetime.  Not safe for
// concurrent use.
type Scanner struct {
	index   *roi.Index
	opts    Opts
	bt      *binomial.Tester
	kind    tagKind
	infoTag string
}

// New returns a Scanner over the given region index.
func New(index *roi.Index, opts Opts) (*Scanner, error) {
	bt, err := binomial.New(opts.ErrorRate)
	if err != nil {
		return nil, err
	}
	s := &Scanner{index: index, opts: opts, bt: bt}
	switch opts.Tag {
	case "", TagAuto:
		s.kind = tagUndetected
	case TagAlleleDepth:
		s.kind = tagInfoAD
	default:
		s.kind = tagInfoCounts
		s.infoTag = opts.Tag
	}
	return s, nil
}

// Scan reads the variant stream at path (gzip-compressed or plain) and
// returns the call table.  See Result for the failure contract.
func (s *Scanner) Scan(ctx context.Context, path string) (res *Result, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		// A close error on an already-incomplete scan adds nothing: the
		// Result carries the failure signal.
		if e := r.Close(); e != nil && err == nil && (res == nil || res.Complete) {
			err = e
		}
	}()
	res, err = s.ScanReader(r)
	return res, err
}

// ScanReader is Scan over an already-open stream.
func (s *Scanner) ScanReader(r io.Reader) (*Result, error) {
	res := &Result{Complete: true}
	sought := s.index.SortedPositions()
	if len(sought) == 0 {
		return res, nil
	}
	cursor := 0
	soughtNow := sought[cursor]
	cursor++
	if soughtNow == 0 {
		// roi.Index refuses position 0, so this cannot happen through the
		// public API; kept as a guard for hand-built indexes.
		log.Printf("vcfscan: asked to scan position 0; positions are 1-indexed")
	}

	exhausted := false // all sought positions consumed during catch-up
	gapWarned := false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if strings.Contains(line, "INDEL") {
			// Indel records carry no usable single-base depths.
			continue
		}
		fields, pos, err := splitLine(line)
		if err != nil {
			return nil, err
		}

		// If the stream has skipped past the sought position (not every base
		// is called in every file), discard sought positions until we are
		// ahead of the stream again.
		if !exhausted && pos > soughtNow {
			if !gapWarned {
				log.Printf("vcfscan: gap observed near positions %d..%d; adjusting scan. Results are not affected; further gaps are not logged.",
					soughtNow, pos)
				gapWarned = true
			}
			for soughtNow <= pos {
				if cursor == len(sought) {
					// Nothing left to look for; drain the stream so read
					// errors still surface.
					exhausted = true
					break
				}
				soughtNow = sought[cursor]
				cursor++
			}
		}
		if exhausted || pos != soughtNow {
			continue
		}

		rec := buildRecord(fields, pos)
		if s.kind == tagUndetected {
			if err := s.detect(rec); err != nil {
				return nil, err
			}
		}
		depths, err := s.extract(rec)
		if err != nil {
			return nil, err
		}
		s.emit(res, rec, depths)

		if cursor == len(sought) {
			// All positions found; the rest of the stream holds nothing of
			// interest.
			break
		}
		soughtNow = sought[cursor]
		cursor++
	}
	if err := scanner.Err(); err != nil {
		log.Printf("vcfscan: stream failed after %d rows: %v", len(res.Rows), err)
		res.Complete = false
	}
	return res, nil
}

// emit appends one row per region referencing the matched position, subject
// to the minimum-frequency filter.
func (s *Scanner) emit(res *Result, rec *Record, depths Depths) {
	depth := depths.Total()
	freqs := depths.sortedDesc()

	maf := math.NaN()
	if depth > 0 {
		maf = float64(freqs[1]) / float64(depth)
	}
	mlp := math.NaN()
	if s.opts.ComputePValue {
		_, mlp = s.bt.Compute(freqs[1]+freqs[2]+freqs[3], depth)
	}

	for _, name := range s.index.RegionsAt(rec.Pos) {
		if math.IsNaN(maf) && s.opts.MinMAF > 0 {
			continue
		}
		if !math.IsNaN(maf) && maf < s.opts.MinMAF {
			continue
		}
		res.Rows = append(res.Rows, Row{
			RoiName: name,
			Pos:     rec.Pos,
			Ref:     rec.Ref,
			Depth:   depth,
			BaseA:   depths[0],
			BaseC:   depths[1],
			BaseG:   depths[2],
			BaseT:   depths[3],
			MAF:     maf,
			MLP:     mlp,
		})
	}
}

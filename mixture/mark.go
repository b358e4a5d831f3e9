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
package mixture

import (
	"math"
	"sort"

	"github.com/grailbio/mixscan/binomial"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/pkg/errors"
)

// Opts configures a Marker.
type Opts struct {
	// ErrorRate is the minor-allele fraction expected from sequencing and
	// mapping noise alone.
	ErrorRate float64
	// MLPCutoff is the minimum -log10(p) score for a position to be marked.
	MLPCutoff float64
	// MinMAF is the minimum minor-allele frequency for a position to be
	// considered at all.
	MinMAF float64
	// ClusteringCutoff downgrades a marked position to 'N' when another
	// marked position lies within this many bases; runs of nearby mixed
	// calls tend to reflect an indel or repeat rather than a true mixture.
	// Zero or negative disables the check.
	ClusteringCutoff int
}

// Call is one accepted mixed-base call.  Pos indexes the sequence, zero
// based.
type Call struct {
	Pos  int
	Base byte
}

// Marker rewrites significant mixed positions of a consensus sequence into
// IUPAC ambiguity codes.
type Marker struct {
	opts Opts
	bt   *binomial.Tester
}

// NewMarker returns a Marker.  The error rate must be a probability in
// (0, 1).
func NewMarker(opts Opts) (*Marker, error) {
	bt, err := binomial.New(opts.ErrorRate)
	if err != nil {
		return nil, err
	}
	return &Marker{opts: opts, bt: bt}, nil
}

// Mark applies the call table to seq and returns the accepted calls plus
// the annotated sequence.  Rows whose significance score is missing are
// scored here from their nonmajor depth.  The first and last marked
// positions are reported but left unchanged in the sequence; they also
// never take part in the clustering check.  Accepted calls exclude 'N'
// downgrades and position zero.
func (m *Marker) Mark(seq string, rows []vcfscan.Row) ([]Call, string, error) {
	if len(rows) == 0 {
		return nil, seq, nil
	}
	candidates := make(map[int]byte)
	for i := range rows {
		row := &rows[i]
		if !(row.MAF >= m.opts.MinMAF) { // NaN fails, dropping no-coverage rows
			continue
		}
		mlp := row.MLP
		if math.IsNaN(mlp) {
			_, mlp = m.bt.Compute(row.Nonmajor(), row.Depth)
		}
		if !(mlp >= m.opts.MLPCutoff) {
			continue
		}
		if row.Pos < 1 || row.Pos > len(seq) {
			return nil, "", errors.Errorf("mixture: position %d outside sequence of length %d", row.Pos, len(seq))
		}
		candidates[row.Pos-1] = iupacCode(row.Depths())
	}
	positions := make([]int, 0, len(candidates))
	for pos := range candidates {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	if cutoff := m.opts.ClusteringCutoff; cutoff > 0 {
		for i := 1; i < len(positions)-1; i++ {
			if positions[i]-positions[i-1] <= cutoff {
				candidates[positions[i]] = 'N'
			}
			if positions[i+1]-positions[i] <= cutoff {
				candidates[positions[i]] = 'N'
			}
		}
	}
	marked := []byte(seq)
	// The boundary candidates are deliberately not written back.  A call at
	// either end of the candidate list has no neighbor on one side, so its
	// clustering status is unknowable; see DESIGN.md before changing this.
	for i := 1; i < len(positions)-1; i++ {
		marked[positions[i]] = candidates[positions[i]]
	}
	var calls []Call
	for _, pos := range positions {
		if candidates[pos] == 'N' || pos == 0 {
			continue
		}
		calls = append(calls, Call{Pos: pos, Base: candidates[pos]})
	}
	return calls, string(marked), nil
}

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
	"context"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/mixscan/vcfscan"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIupacCode(t *testing.T) {
	assert.Equal(t, byte('r'), iupacCode([4]int{60, 0, 40, 0}))   // A over G
	assert.Equal(t, byte('R'), iupacCode([4]int{40, 0, 60, 0}))   // G over A
	assert.Equal(t, byte('Y'), iupacCode([4]int{0, 40, 0, 60}))   // T over C
	assert.Equal(t, byte('m'), iupacCode([4]int{50, 30, 10, 10})) // A over C
	// Even mixes keep A,C,G,T order, so the lower-case code wins.
	assert.Equal(t, byte('r'), iupacCode([4]int{50, 0, 50, 0}))
	assert.Equal(t, byte('k'), iupacCode([4]int{0, 0, 50, 50}))
}

// row builds a call-table row at pos with the given base depths, leaving the
// significance score for Mark to fill in.
func row(pos, a, c, g, tt int) vcfscan.Row {
	depth := a + c + g + tt
	top, second := 0, 0
	for _, d := range []int{a, c, g, tt} {
		if d > top {
			top, second = d, top
		} else if d > second {
			second = d
		}
	}
	maf := math.NaN()
	if depth > 0 {
		maf = float64(second) / float64(depth)
	}
	return vcfscan.Row{
		RoiName: "region", Pos: pos, Ref: "A", Depth: depth,
		BaseA: a, BaseC: c, BaseG: g, BaseT: tt,
		MAF: maf, MLP: math.NaN(),
	}
}

func newTestMarker(t *testing.T, clusteringCutoff int) *Marker {
	m, err := NewMarker(Opts{
		ErrorRate:        0.001,
		MLPCutoff:        5,
		ClusteringCutoff: clusteringCutoff,
	})
	require.NoError(t, err)
	return m
}

func TestMarkInteriorPosition(t *testing.T) {
	m := newTestMarker(t, 0)
	seq := strings.Repeat("A", 20)
	// Three well-separated significant mixtures; only the middle one is
	// written into the sequence.
	rows := []vcfscan.Row{
		row(3, 60, 0, 40, 0),
		row(10, 0, 55, 0, 45),
		row(18, 30, 70, 0, 0),
	}
	calls, marked, err := m.Mark(seq, rows)
	require.NoError(t, err)
	assert.Equal(t, []Call{{Pos: 2, Base: 'r'}, {Pos: 9, Base: 'y'}, {Pos: 17, Base: 'M'}}, calls)
	want := []byte(seq)
	want[9] = 'y'
	assert.Equal(t, string(want), marked)
}

func TestMarkRespectsCutoffs(t *testing.T) {
	m, err := NewMarker(Opts{ErrorRate: 0.001, MLPCutoff: 5, MinMAF: 0.2})
	require.NoError(t, err)
	seq := strings.Repeat("A", 20)
	rows := []vcfscan.Row{
		row(3, 60, 0, 40, 0),
		row(10, 99, 1, 0, 0), // minor fraction below MinMAF 0.2
		row(12, 2, 1, 0, 0),  // above MinMAF but too shallow to reach the score cutoff
		row(18, 30, 70, 0, 0),
	}
	calls, marked, err := m.Mark(seq, rows)
	require.NoError(t, err)
	assert.Equal(t, []Call{{Pos: 2, Base: 'r'}, {Pos: 17, Base: 'M'}}, calls)
	assert.Equal(t, seq, marked) // both survivors are boundary candidates
}

func TestMarkPrecomputedScore(t *testing.T) {
	m := newTestMarker(t, 0)
	seq := strings.Repeat("A", 10)
	rows := []vcfscan.Row{
		row(2, 60, 0, 40, 0),
		row(5, 60, 0, 40, 0),
		row(9, 60, 0, 40, 0),
	}
	rows[1].MLP = 3 // below cutoff, must not be rescored
	calls, marked, err := m.Mark(seq, rows)
	require.NoError(t, err)
	assert.Equal(t, []Call{{Pos: 1, Base: 'r'}, {Pos: 8, Base: 'r'}}, calls)
	assert.Equal(t, seq, marked)
}

func TestMarkClustering(t *testing.T) {
	m := newTestMarker(t, 3)
	seq := strings.Repeat("A", 40)
	// The two interior candidates sit exactly at the clustering distance
	// from each other, so both become 'N'.
	rows := []vcfscan.Row{
		row(2, 60, 0, 40, 0),
		row(20, 60, 0, 40, 0),
		row(23, 0, 45, 0, 55),
		row(38, 60, 0, 40, 0),
	}
	calls, marked, err := m.Mark(seq, rows)
	require.NoError(t, err)
	assert.Equal(t, []Call{{Pos: 1, Base: 'r'}, {Pos: 37, Base: 'r'}}, calls)
	want := []byte(seq)
	want[19] = 'N'
	want[22] = 'N'
	assert.Equal(t, string(want), marked)
}

func TestMarkClusteringDisabled(t *testing.T) {
	m := newTestMarker(t, 0)
	seq := strings.Repeat("A", 40)
	rows := []vcfscan.Row{
		row(2, 60, 0, 40, 0),
		row(20, 60, 0, 40, 0),
		row(23, 0, 45, 0, 55),
		row(38, 60, 0, 40, 0),
	}
	calls, marked, err := m.Mark(seq, rows)
	require.NoError(t, err)
	require.Len(t, calls, 4)
	want := []byte(seq)
	want[19] = 'r'
	want[22] = 'Y'
	assert.Equal(t, string(want), marked)
}

func TestMarkExcludesPositionZero(t *testing.T) {
	m := newTestMarker(t, 0)
	seq := strings.Repeat("A", 10)
	rows := []vcfscan.Row{
		row(1, 60, 0, 40, 0),
		row(5, 60, 0, 40, 0),
		row(9, 60, 0, 40, 0),
	}
	calls, _, err := m.Mark(seq, rows)
	require.NoError(t, err)
	assert.Equal(t, []Call{{Pos: 4, Base: 'r'}, {Pos: 8, Base: 'r'}}, calls)
}

func TestMarkNoRows(t *testing.T) {
	m := newTestMarker(t, 0)
	calls, marked, err := m.Mark("ACGT", nil)
	require.NoError(t, err)
	assert.Nil(t, calls)
	assert.Equal(t, "ACGT", marked)
}

func TestMarkPositionOutOfRange(t *testing.T) {
	m := newTestMarker(t, 0)
	_, _, err := m.Mark("ACGT", []vcfscan.Row{row(5, 60, 0, 40, 0)})
	require.Error(t, err)
}

func TestReadFasta(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "mixture")
	defer cleanup()
	path := filepath.Join(tmpDir, "ref.fasta")
	require.NoError(t, ioutil.WriteFile(path,
		[]byte(">seq1 a consensus\nACGT\nACGT\n"), 0644))
	name, seq, err := readFasta(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "seq1", name)
	assert.Equal(t, "ACGTACGT", seq)
}

func TestReadFastaNoRecord(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "mixture")
	defer cleanup()
	path := filepath.Join(tmpDir, "empty.fasta")
	require.NoError(t, ioutil.WriteFile(path, []byte(""), 0644))
	_, _, err := readFasta(context.Background(), path)
	require.Error(t, err)
}

func TestMarkFile(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "mixture")
	defer cleanup()
	ctx := context.Background()
	seqPath := filepath.Join(tmpDir, "consensus.fasta")
	require.NoError(t, ioutil.WriteFile(seqPath,
		[]byte(">sample\n"+strings.Repeat("A", 20)+"\n"), 0644))
	rows := []vcfscan.Row{
		row(3, 60, 0, 40, 0),
		row(10, 0, 55, 0, 45),
		row(18, 30, 70, 0, 0),
	}
	callsPath := filepath.Join(tmpDir, "calls.tsv")
	require.NoError(t, vcfscan.WriteRowsFile(ctx, callsPath, rows, false))

	m := newTestMarker(t, 0)
	outPath := filepath.Join(tmpDir, "marked.fasta")
	calls, err := m.MarkFile(ctx, seqPath, callsPath, outPath)
	require.NoError(t, err)
	require.Len(t, calls, 3)

	name, seq, err := readFasta(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, "sample", name)
	want := []byte(strings.Repeat("A", 20))
	want[9] = 'y'
	assert.Equal(t, string(want), seq)
}

func TestMarkFileEmptyCalls(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "mixture")
	defer cleanup()
	ctx := context.Background()
	seqPath := filepath.Join(tmpDir, "consensus.fasta")
	require.NoError(t, ioutil.WriteFile(seqPath, []byte(">sample\nACGT\n"), 0644))
	callsPath := filepath.Join(tmpDir, "calls.tsv")
	require.NoError(t, ioutil.WriteFile(callsPath, nil, 0644))

	m := newTestMarker(t, 0)
	outPath := filepath.Join(tmpDir, "marked.fasta.gz")
	calls, err := m.MarkFile(ctx, seqPath, callsPath, outPath)
	require.NoError(t, err)
	assert.Nil(t, calls)
	_, seq, err := readFasta(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", seq)
}

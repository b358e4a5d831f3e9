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
package vcfscan_test

import (
	"compress/gzip"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/mixscan/roi"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/grailbio/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vcfHeader = "##fileformat=VCFv4.2\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tsample1\n"

// line renders one BaseCounts4 data line at the given position.
func line(pos int, ref, counts string) string {
	return fmt.Sprintf("chr1\t%d\t.\t%s\tC\t.\tPASS\tBaseCounts4=%s\tGT\t0/0\n", pos, ref, counts)
}

func newScanner(t *testing.T, index *roi.Index) *vcfscan.Scanner {
	s, err := vcfscan.New(index, vcfscan.DefaultOpts)
	require.NoError(t, err)
	return s
}

func TestScanMergesRegions(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{1, 2, 3}))
	require.NoError(t, index.AddRegion("r2", []int{2, 3, 4}))
	require.NoError(t, index.AddRegion("r3", []int{10}))

	stream := vcfHeader +
		line(1, "A", "96,4,0,0") +
		line(2, "C", "0,100,0,0") +
		line(3, "G", "0,0,50,50") +
		line(4, "T", "0,0,0,0")
	res, err := newScanner(t, index).ScanReader(strings.NewReader(stream))
	require.NoError(t, err)
	assert.True(t, res.Complete)

	// One row per region-position pair for positions 1-4; nothing for the
	// unmatched position 10.
	require.Len(t, res.Rows, 6)
	type key struct {
		name string
		pos  int
	}
	seen := make(map[key]vcfscan.Row)
	for _, row := range res.Rows {
		seen[key{row.RoiName, row.Pos}] = row
	}
	for _, want := range []key{{"r1", 1}, {"r1", 2}, {"r1", 3}, {"r2", 2}, {"r2", 3}, {"r2", 4}} {
		assert.Contains(t, seen, want)
	}

	row := seen[key{"r1", 1}]
	assert.Equal(t, "A", row.Ref)
	assert.Equal(t, 100, row.Depth)
	assert.Equal(t, 96, row.BaseA)
	assert.Equal(t, 4, row.BaseC)
	assert.InEpsilon(t, 0.04, row.MAF, 1e-12)
	assert.True(t, row.MLP > 2, "4/100 at 0.1%% error should be significant, got mlp=%v", row.MLP)
	assert.Equal(t, 4, row.Nonmajor())

	// Zero-depth position: maf undefined, test skipped.
	row = seen[key{"r2", 4}]
	assert.Equal(t, 0, row.Depth)
	assert.True(t, math.IsNaN(row.MAF))
	assert.True(t, math.IsNaN(row.MLP))

	// An even 50/50 split is about as far from a 0.1% error model as a
	// 100-deep pileup can get; the minor count here is 50, not the full
	// depth, so the all-nonmajor shortcut does not apply.
	row = seen[key{"r1", 3}]
	assert.InEpsilon(t, 0.5, row.MAF, 1e-12)
	assert.InDelta(t, 121.017, row.MLP, 0.01)
}

func TestScanNoPositions(t *testing.T) {
	res, err := newScanner(t, roi.NewIndex()).ScanReader(strings.NewReader(vcfHeader + line(1, "A", "1,0,0,0")))
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Empty(t, res.Rows)
}

func TestScanAllGaps(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{100, 200}))
	stream := vcfHeader + line(1, "A", "1,0,0,0") + line(2, "C", "0,1,0,0")
	res, err := newScanner(t, index).ScanReader(strings.NewReader(stream))
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Empty(t, res.Rows)
}

func TestScanCatchUp(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{5, 10}))
	// Position 5 is never called; the scan must recover and still match 10.
	var b strings.Builder
	b.WriteString(vcfHeader)
	for _, pos := range []int{1, 2, 3, 4, 6, 7, 8, 9, 10, 11} {
		b.WriteString(line(pos, "A", "10,0,0,0"))
	}
	res, err := newScanner(t, index).ScanReader(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.True(t, res.Complete)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 10, res.Rows[0].Pos)
}

func TestScanSkipsIndels(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{2}))
	stream := vcfHeader +
		"chr1\t2\t.\tAT\tA\t.\tPASS\tINDEL;BaseCounts4=9,9,9,9\tGT\t0/0\n" +
		line(2, "C", "0,40,0,0")
	res, err := newScanner(t, index).ScanReader(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 40, res.Rows[0].BaseC)
}

func TestScanMinMAF(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{1, 2, 3}))
	opts := vcfscan.DefaultOpts
	opts.MinMAF = 0.05
	s, err := vcfscan.New(index, opts)
	require.NoError(t, err)

	stream := vcfHeader +
		line(1, "A", "99,1,0,0") + // maf 0.01: dropped
		line(2, "C", "10,90,0,0") + // maf 0.10: kept
		line(3, "G", "0,0,0,0") // undefined maf: dropped when MinMAF > 0
	res, err := s.ScanReader(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 2, res.Rows[0].Pos)
}

func TestScanMalformedLine(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{1}))
	stream := vcfHeader + "chr1\t1\tonly-three-columns\n"
	_, err := newScanner(t, index).ScanReader(strings.NewReader(stream))
	require.Error(t, err)
	assert.Equal(t, vcfscan.ErrMalformedLine, errors.Cause(err))
}

// failingReader yields its payload and then a read error, standing in for a
// stream that dies mid-file.
type failingReader struct {
	r io.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func TestScanTruncatedStream(t *testing.T) {
	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{1, 50}))
	stream := vcfHeader + line(1, "A", "10,0,0,0")
	res, err := newScanner(t, index).ScanReader(&failingReader{strings.NewReader(stream)})
	require.NoError(t, err)
	assert.False(t, res.Complete)
	// Rows collected before the failure survive.
	require.Len(t, res.Rows, 1)
}

func TestScanGzippedFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	path := filepath.Join(tmpdir, "calls.vcf.gz")
	var raw strings.Builder
	raw.WriteString(vcfHeader)
	raw.WriteString(line(1, "A", "96,4,0,0"))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = io.Copy(zw, strings.NewReader(raw.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	index := roi.NewIndex()
	require.NoError(t, index.AddRegion("r1", []int{1}))
	res, err := newScanner(t, index).Scan(ctx, path)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 100, res.Rows[0].Depth)

	// A truncated gzip member surfaces as an incomplete scan, not an error.
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	truncPath := filepath.Join(tmpdir, "trunc.vcf.gz")
	require.NoError(t, ioutil.WriteFile(truncPath, data[:len(data)-5], 0644))
	index2 := roi.NewIndex()
	require.NoError(t, index2.AddRegion("r1", []int{1, 50}))
	res, err = newScanner(t, index2).Scan(ctx, truncPath)
	require.NoError(t, err)
	assert.False(t, res.Complete)
}

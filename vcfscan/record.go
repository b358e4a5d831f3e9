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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The scanned stream is VCF-shaped text: tab-separated, '#' lines are
// headers, and exactly these columns per data line (single-sample layout).
const numColumns = 10

const (
	colChrom = iota
	colPos
	colID
	colRef
	colAlt
	colQual
	colFilter
	colInfo
	colFormat
	colSample
)

// ErrMalformedLine indicates a data line that does not split into the
// expected column count.  This is a structural fault and aborts the scan.
var ErrMalformedLine = errors.New("vcfscan: malformed line")

// Record is one fully parsed data line.  Only the fields this package
// consumes are interpreted; the rest stay as raw strings.
type Record struct {
	Chrom string
	Pos   int
	Ref   string
	// Alts holds the single-nucleotide alternates only, in listed order.
	// Multi-base and symbolic alternates are dropped.
	Alts []string
	// Info is the semicolon-separated key=value bag.  Keys without '=' map
	// to the empty string.
	Info map[string]string
	// Format and Sample are the colon-separated genotype format keys and the
	// per-sample values, index-aligned.
	Format []string
	Sample []string
}

// splitLine splits a data line into its columns and parses the position.
func splitLine(line string) (fields []string, pos int, err error) {
	fields = strings.Fields(line)
	if len(fields) != numColumns {
		return nil, 0, errors.Wrapf(ErrMalformedLine, "got %d columns, want %d: %.80q", len(fields), numColumns, line)
	}
	pos, perr := strconv.Atoi(fields[colPos])
	if perr != nil {
		return nil, 0, errors.Wrapf(ErrMalformedLine, "bad position %q", fields[colPos])
	}
	return fields, pos, nil
}

// buildRecord interprets the columns of a matched line.  It is only called
// for positions the scan actually reports, so the per-line cost of building
// maps is bounded by the number of sought positions.
func buildRecord(fields []string, pos int) *Record {
	rec := &Record{
		Chrom: fields[colChrom],
		Pos:   pos,
		Ref:   fields[colRef],
	}
	for _, alt := range strings.Split(fields[colAlt], ",") {
		if len(alt) == 1 && baseIndex(alt) >= 0 {
			rec.Alts = append(rec.Alts, alt)
		}
	}
	rec.Info = make(map[string]string)
	for _, item := range strings.Split(fields[colInfo], ";") {
		if item == "" {
			continue
		}
		if eq := strings.IndexByte(item, '='); eq >= 0 {
			rec.Info[item[:eq]] = item[eq+1:]
		} else {
			rec.Info[item] = ""
		}
	}
	rec.Format = strings.Split(fields[colFormat], ":")
	rec.Sample = strings.Split(fields[colSample], ":")
	return rec
}

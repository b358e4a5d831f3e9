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

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// Recognized depth-tag conventions.
const (
	// TagAuto selects the source tag per stream: a per-sample allele-depth
	// field is preferred, then an allele-depth info tag, then the default
	// four-count info tag.  Detection runs once, at the first matched
	// record, and the result is reused for the rest of the scan.
	TagAuto = "auto"

	// TagAlleleDepth is the samtools-mpileup allele-depth convention: the
	// first value is the depth of the reference base and each later value
	// the depth of the corresponding listed alternate.
	TagAlleleDepth = "AD"

	// DefaultInfoTag is the four-count info tag emitted by GATK
	// VariantAnnotator: comma-separated high-quality depths for A,C,G,T in
	// that fixed order.
	DefaultInfoTag = "BaseCounts4"
)

var (
	// ErrMissingTag indicates the configured (or auto-detected) depth tag is
	// absent from a record that needs it.  Aborts the scan.
	ErrMissingTag = errors.New("vcfscan: required depth tag not found")

	// ErrBadDepths indicates a depth tag whose element count does not match
	// its convention.  Aborts the scan.
	ErrBadDepths = errors.New("vcfscan: depth tag has wrong element count")
)

// tagKind is the resolved extraction strategy, fixed for a whole scan.
type tagKind int

const (
	tagUndetected tagKind = iota
	tagInfoCounts         // four-count info tag, fixed A,C,G,T order
	tagInfoAD             // allele-depth list in the info bag
	tagSampleAD           // allele-depth list in the per-sample column
)

// Depths holds per-base read depths in fixed A,C,G,T order.
type Depths [4]int

// Total returns the summed depth over the four bases.
func (d Depths) Total() int {
	return d[0] + d[1] + d[2] + d[3]
}

// sortedDesc returns a copy of the four depths in descending order.
func (d Depths) sortedDesc() [4]int {
	s := [4]int(d)
	// Four elements; a fixed sorting network beats sort.Ints here.
	if s[0] < s[1] {
		s[0], s[1] = s[1], s[0]
	}
	if s[2] < s[3] {
		s[2], s[3] = s[3], s[2]
	}
	if s[0] < s[2] {
		s[0], s[2] = s[2], s[0]
	}
	if s[1] < s[3] {
		s[1], s[3] = s[3], s[1]
	}
	if s[1] < s[2] {
		s[1], s[2] = s[2], s[1]
	}
	return s
}

// baseIndex maps a single-base string to its Depths slot, or -1.
func baseIndex(base string) int {
	switch base {
	case "A":
		return 0
	case "C":
		return 1
	case "G":
		return 2
	case "T":
		return 3
	}
	return -1
}

// detect resolves TagAuto against the first matched record.
func (s *Scanner) detect(rec *Record) error {
	for _, key := range rec.Format {
		if key == TagAlleleDepth {
			s.kind = tagSampleAD
			return nil
		}
	}
	if _, ok := rec.Info[TagAlleleDepth]; ok {
		s.kind = tagInfoAD
		return nil
	}
	if _, ok := rec.Info[DefaultInfoTag]; ok {
		s.kind = tagInfoCounts
		s.infoTag = DefaultInfoTag
		return nil
	}
	return errors.Wrapf(ErrMissingTag, "auto detection found neither %s nor %s at position %d",
		TagAlleleDepth, DefaultInfoTag, rec.Pos)
}

// extract derives the four fixed-order base depths from one record under the
// resolved strategy.
func (s *Scanner) extract(rec *Record) (Depths, error) {
	switch s.kind {
	case tagInfoCounts:
		raw, ok := rec.Info[s.infoTag]
		if !ok {
			return Depths{}, errors.Wrapf(ErrMissingTag, "info tag %s absent at position %d (keys: %s)",
				s.infoTag, rec.Pos, infoKeys(rec.Info))
		}
		counts, err := parseCounts(raw)
		if err != nil {
			// Very rare; typically reflects stream corruption.  Recover with
			// zero depths and keep scanning.
			log.Printf("vcfscan: integer conversion failed at position %d: tag %s contained %q; assigning zero depths",
				rec.Pos, s.infoTag, raw)
			return Depths{}, nil
		}
		if len(counts) != 4 {
			return Depths{}, errors.Wrapf(ErrBadDepths, "tag %s holds %d depths, want 4, at position %d",
				s.infoTag, len(counts), rec.Pos)
		}
		var d Depths
		copy(d[:], counts)
		return d, nil

	case tagInfoAD:
		raw, ok := rec.Info[TagAlleleDepth]
		if !ok {
			return Depths{}, errors.Wrapf(ErrMissingTag, "info tag %s absent at position %d (keys: %s)",
				TagAlleleDepth, rec.Pos, infoKeys(rec.Info))
		}
		counts, err := parseCounts(raw)
		if err != nil {
			log.Printf("vcfscan: integer conversion failed at position %d: tag %s contained %q; assigning zero depths",
				rec.Pos, TagAlleleDepth, raw)
			counts = []int{0, 0, 0, 0}
		}
		return scatterAlleleDepths(rec, counts)

	case tagSampleAD:
		idx := -1
		for i, key := range rec.Format {
			if key == TagAlleleDepth {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Depths{}, errors.Wrapf(ErrMissingTag, "format field %s absent at position %d (fields: %s)",
				TagAlleleDepth, rec.Pos, strings.Join(rec.Format, ":"))
		}
		if idx >= len(rec.Sample) {
			return Depths{}, errors.Wrapf(ErrBadDepths, "sample column has %d values but %s is field %d at position %d",
				len(rec.Sample), TagAlleleDepth, idx, rec.Pos)
		}
		counts, err := parseCounts(rec.Sample[idx])
		if err != nil {
			return Depths{}, errors.Wrapf(ErrBadDepths, "bad %s sample value %q at position %d",
				TagAlleleDepth, rec.Sample[idx], rec.Pos)
		}
		return scatterAlleleDepths(rec, counts)
	}
	return Depths{}, errors.New("vcfscan: extraction strategy not resolved")
}

// scatterAlleleDepths places reference-first allele depths into the fixed
// A,C,G,T slots.  Bases not mentioned stay zero; a repeated base overwrites.
func scatterAlleleDepths(rec *Record, counts []int) (Depths, error) {
	var d Depths
	if len(counts) == 0 {
		return d, errors.Wrapf(ErrBadDepths, "empty allele-depth list at position %d", rec.Pos)
	}
	if i := baseIndex(rec.Ref); i >= 0 {
		d[i] = counts[0]
	}
	for j, alt := range rec.Alts {
		if j+1 >= len(counts) {
			return d, errors.Wrapf(ErrBadDepths, "%d alternates but only %d allele depths at position %d",
				len(rec.Alts), len(counts), rec.Pos)
		}
		if i := baseIndex(alt); i >= 0 {
			d[i] = counts[j+1]
		}
	}
	return d, nil
}

func parseCounts(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	counts := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

func infoKeys(info map[string]string) string {
	keys := make([]string, 0, len(info))
	for key := range info {
		keys = append(keys, key)
	}
	return strings.Join(keys, ",")
}

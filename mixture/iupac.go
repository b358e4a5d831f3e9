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

// Package mixture annotates consensus sequences with IUPAC ambiguity codes
// at positions whose base-call table shows a statistically significant
// minor-allele fraction.
package mixture

import "sort"

// iupac maps the two most common bases, most common first, to the ambiguity
// code written into the sequence.  Case carries information: lower case
// means the alphabetically first base of the pair is the more common one.
var iupac = map[string]byte{
	"AG": 'r', "GA": 'R',
	"AT": 'w', "TA": 'W',
	"CT": 'y', "TC": 'Y',
	"AC": 'm', "CA": 'M',
	"CG": 's', "GC": 'S',
	"GT": 'k', "TG": 'K',
}

// iupacCode returns the ambiguity code for the two deepest bases in
// {A,C,G,T} order of depths.  Ties keep A,C,G,T order, so e.g. an even A/G
// mix always yields 'r', never 'R'.
func iupacCode(depths [4]int) byte {
	order := []int{0, 1, 2, 3}
	sort.SliceStable(order, func(i, j int) bool {
		return depths[order[i]] > depths[order[j]]
	})
	const bases = "ACGT"
	return iupac[string([]byte{bases[order[0]], bases[order[1]]})]
}

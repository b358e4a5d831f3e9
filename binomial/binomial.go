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

// Package binomial tests the significance of a minor-variant count at a given
// depth against an expected background error rate, using an exact two-sided
// binomial test.  Results are memoized per (count, depth) pair, so repeated
// queries at common depths are cheap.
package binomial

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxScore is the -log10(p) score recorded when the p-value underflows to
// zero in float64 arithmetic.
const MaxScore = 250

// relEps pads the observed point probability when collecting the two-sided
// tail, so that outcomes of (floating-point) equal likelihood are included.
const relEps = 1 + 1e-7

// Tester runs memoized exact binomial tests against a fixed expected error
// rate.  A Tester is not safe for concurrent use; each scan owns its own.
type Tester struct {
	errorRate float64
	cache     map[cacheKey]float64
}

type cacheKey struct {
	minor, depth int
}

// New returns a Tester for the given expected per-base error rate.  The rate
// must be a real number strictly between 0 and 1.
func New(errorRate float64) (*Tester, error) {
	if math.IsNaN(errorRate) || math.IsInf(errorRate, 0) || errorRate <= 0 || errorRate >= 1 {
		return nil, errors.Errorf("binomial: expected error rate must be in (0, 1), got %v", errorRate)
	}
	return &Tester{
		errorRate: errorRate,
		cache:     make(map[cacheKey]float64),
	}, nil
}

// ErrorRate returns the configured expected error rate.
func (t *Tester) ErrorRate() float64 { return t.errorRate }

// Compute returns the p-value for observing minor "successes" in depth
// trials under the configured error rate, along with the -log10(p) score.
//
// Edge cases, preserved deliberately (see DESIGN.md before changing them):
//   - depth 0: no test is possible; both results are NaN.
//   - minor == depth: the position has no majority base at all and is
//     reported as non-significant, (1, 0), without running the test.
func (t *Tester) Compute(minor, depth int) (p, mlp float64) {
	if depth == 0 {
		return math.NaN(), math.NaN()
	}
	if minor == depth {
		return 1, 0
	}
	key := cacheKey{minor, depth}
	pv, ok := t.cache[key]
	if !ok {
		pv = t.twoSided(minor, depth)
		t.cache[key] = pv
	}
	if pv == 0 {
		return 0, MaxScore
	}
	return pv, -math.Log10(pv)
}

// twoSided computes the exact two-sided binomial test: the total probability
// of all outcomes no more likely than the observed count k out of n.
func (t *Tester) twoSided(k, n int) float64 {
	dist := distuv.Binomial{N: float64(n), P: t.errorRate}
	cutoff := dist.Prob(float64(k)) * relEps
	var sum float64
	for i := 0; i <= n; i++ {
		if pi := dist.Prob(float64(i)); pi <= cutoff {
			sum += pi
		}
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

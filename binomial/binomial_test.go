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
package binomial_test

import (
	"math"
	"testing"

	"github.com/grailbio/mixscan/binomial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadErrorRate(t *testing.T) {
	for _, rate := range []float64{0, 1, -0.5, 2, math.NaN(), math.Inf(1)} {
		_, err := binomial.New(rate)
		assert.Error(t, err, "rate %v", rate)
	}
}

func TestEdgeCases(t *testing.T) {
	bt, err := binomial.New(0.001)
	require.NoError(t, err)

	// Zero depth: nothing to test.
	p, mlp := bt.Compute(0, 0)
	assert.True(t, math.IsNaN(p))
	assert.True(t, math.IsNaN(mlp))

	// Minor count equal to depth is reported non-significant by convention.
	for _, depth := range []int{1, 7, 1000} {
		p, mlp = bt.Compute(depth, depth)
		assert.Equal(t, 1.0, p)
		assert.Equal(t, 0.0, mlp)
	}

	// The convention is strictly minor == depth; a half-depth minor count
	// runs the exact test and is extreme under a 0.1% error model.
	p, mlp = bt.Compute(50, 100)
	assert.InEpsilon(t, 9.6e-122, p, 0.01)
	assert.InDelta(t, 121.017, mlp, 0.01)
}

func TestExactValues(t *testing.T) {
	// With rate 0.25 and two trials, the point probabilities are
	// 0.5625, 0.375, 0.0625; the two-sided p for one success is
	// 0.375 + 0.0625 = 0.4375.
	bt, err := binomial.New(0.25)
	require.NoError(t, err)
	p, mlp := bt.Compute(1, 2)
	assert.InEpsilon(t, 0.4375, p, 1e-12)
	assert.InEpsilon(t, -math.Log10(0.4375), mlp, 1e-12)

	// With rate 0.5, zero successes out of two collects both tails.
	bt, err = binomial.New(0.5)
	require.NoError(t, err)
	p, _ = bt.Compute(0, 2)
	assert.InEpsilon(t, 0.5, p, 1e-12)
}

func TestSignificance(t *testing.T) {
	bt, err := binomial.New(0.001)
	require.NoError(t, err)

	// Zero minor reads at any depth is the expected outcome.
	p, mlp := bt.Compute(0, 100)
	assert.True(t, p > 0.9)
	assert.True(t, mlp < 0.1)

	// 20 minor reads out of 100 at a 0.1% error rate is wildly unexpected.
	p, mlp = bt.Compute(20, 100)
	assert.True(t, p < 1e-10)
	assert.True(t, mlp > 10)
}

func TestMemoization(t *testing.T) {
	bt, err := binomial.New(0.001)
	require.NoError(t, err)
	p1, mlp1 := bt.Compute(5, 200)
	p2, mlp2 := bt.Compute(5, 200)
	// Cached results are byte-identical, not merely close.
	assert.Equal(t, p1, p2)
	assert.Equal(t, mlp1, mlp2)
}

func TestScoreSaturation(t *testing.T) {
	bt, err := binomial.New(0.001)
	require.NoError(t, err)
	// Enough minor evidence at high depth underflows the p-value to zero;
	// the score is pinned rather than infinite.
	p, mlp := bt.Compute(5000, 10000)
	assert.Equal(t, 0.0, p)
	assert.Equal(t, float64(binomial.MaxScore), mlp)
}

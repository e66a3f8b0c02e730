// Copyright 2025 go-treelik Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package treelik_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-treelik/treelik"
)

// Jukes-Cantor eigensystem. The eigenvector matrix is the symmetric
// 4x4 Hadamard matrix, so U⁻¹ = U/4 and the reconstruction
// U·diag(exp(λt))·U⁻¹ reproduces the closed-form transition
// probabilities exactly.
func jcU() []float64 {
	return []float64{
		1, 1, 1, 1,
		1, -1, 1, -1,
		1, 1, -1, -1,
		1, -1, -1, 1,
	}
}

func jcUInv() []float64 {
	u := jcU()
	inv := make([]float64, len(u))
	for i, x := range u {
		inv[i] = x / 4
	}
	return inv
}

func jcLambda() []float64 {
	return []float64{0, -4.0 / 3, -4.0 / 3, -4.0 / 3}
}

var uniformFreqs = []float64{0.25, 0.25, 0.25, 0.25}

// jcInstance builds an instance, installs the Jukes-Cantor eigensystem
// in slot 0 and registers teardown.
func jcInstance(t *testing.T, cfg treelik.Config) *treelik.Instance {
	t.Helper()
	inst, err := treelik.NewInstance(cfg)
	require.NoError(t, err)
	t.Cleanup(inst.Finalize)
	require.NoError(t, inst.SetEigenDecomposition(0, jcU(), jcUInv(), jcLambda()))
	return inst
}

// TestRootTwoTipsZeroBranches pins the simplest possible evaluation:
// two identical observations across zero-length branches give the
// equilibrium probability of the shared state.
func TestRootTwoTipsZeroBranches(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 4, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
	})
	require.NoError(t, inst.SetCategoryRates([]float64{1}))
	require.NoError(t, inst.SetCategoryWeights([]float64{1}))
	require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
	require.NoError(t, inst.SetTipStates(0, []int32{0}))
	require.NoError(t, inst.SetTipStates(1, []int32{0}))
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0, 0}))

	require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
		Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
		ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
	}}, treelik.None, treelik.RescaleNone))

	out := make([]float64, 1)
	require.NoError(t, inst.CalculateRootLogLikelihoods(2, treelik.None, out))
	require.InDelta(t, math.Log(0.25), out[0], 1e-12)
}

// TestRootTwoTipsShortBranches pins a transition-dependent value:
// observations 0 and 1 across two branches of length 0.1 under
// Jukes-Cantor. The exact likelihood is (1 - exp(-0.8/3)) / 16.
func TestRootTwoTipsShortBranches(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 4, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
	})
	require.NoError(t, inst.SetCategoryRates([]float64{1}))
	require.NoError(t, inst.SetCategoryWeights([]float64{1}))
	require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
	require.NoError(t, inst.SetTipStates(0, []int32{0}))
	require.NoError(t, inst.SetTipStates(1, []int32{1}))
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0.1, 0.1}))

	require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
		Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
		ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
	}}, treelik.None, treelik.RescaleNone))

	out := make([]float64, 1)
	require.NoError(t, inst.CalculateRootLogLikelihoods(2, treelik.None, out))
	require.InDelta(t, -4.2247166864431245, out[0], 1e-10)
}

// TestRootThreeTipStarZeroBranches joins three agreeing tips at a root
// across zero-length branches for four patterns, one per state. Every
// per-site log-likelihood is the equilibrium log-frequency.
func TestRootThreeTipStarZeroBranches(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 3, PartialsBufferCount: 2, CompactBufferCount: 3,
		StateCount: 4, PatternCount: 4,
		EigenBufferCount: 1, MatrixBufferCount: 4, CategoryCount: 1,
	})
	require.NoError(t, inst.SetCategoryRates([]float64{1}))
	require.NoError(t, inst.SetCategoryWeights([]float64{1}))
	require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
	states := []int32{0, 1, 2, 3}
	for tip := 0; tip < 3; tip++ {
		require.NoError(t, inst.SetTipStates(tip, states))
	}
	// Matrix 3 spans the zero-length connection between the two joins.
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1, 2, 3}, nil, nil, []float64{0, 0, 0, 0}))

	require.NoError(t, inst.UpdatePartials([]treelik.Operation{
		{
			Destination: 3, DestScale: treelik.None, SourceScale: treelik.None,
			ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
		},
		{
			Destination: 4, DestScale: treelik.None, SourceScale: treelik.None,
			ChildA: 3, ChildAMatrix: 3, ChildB: 2, ChildBMatrix: 2,
		},
	}, treelik.None, treelik.RescaleNone))

	out := make([]float64, 4)
	require.NoError(t, inst.CalculateRootLogLikelihoods(4, treelik.None, out))
	for k, lnL := range out {
		require.InDeltaf(t, math.Log(0.25), lnL, 1e-12, "pattern %d", k)
	}
}

// TestRootTwoRateCategories pins a two-category mixture: tips 0 and 2
// across branches 0.3 and 0.7, rates {0.5, 1.5} weighted {0.4, 0.6}.
func TestRootTwoRateCategories(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 4, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 2,
	})
	require.NoError(t, inst.SetCategoryRates([]float64{0.5, 1.5}))
	require.NoError(t, inst.SetCategoryWeights([]float64{0.4, 0.6}))
	require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
	require.NoError(t, inst.SetTipStates(0, []int32{0}))
	require.NoError(t, inst.SetTipStates(1, []int32{2}))
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0.3, 0.7}))

	require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
		Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
		ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
	}}, treelik.None, treelik.RescaleNone))

	out := make([]float64, 1)
	require.NoError(t, inst.CalculateRootLogLikelihoods(2, treelik.None, out))
	require.InDelta(t, -3.1102568982885566, out[0], 1e-10)
}

// TestWildcardMatchesUniformPartials verifies that the wildcard state
// behaves exactly like explicit all-ones ambiguity partials at the same
// tip.
func TestWildcardMatchesUniformPartials(t *testing.T) {
	run := func(t *testing.T, compact int, setTip1 func(inst *treelik.Instance) error) float64 {
		inst := jcInstance(t, treelik.Config{
			TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: compact,
			StateCount: 4, PatternCount: 1,
			EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
		})
		require.NoError(t, inst.SetCategoryRates([]float64{1}))
		require.NoError(t, inst.SetCategoryWeights([]float64{1}))
		require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
		require.NoError(t, inst.SetTipStates(0, []int32{2}))
		require.NoError(t, setTip1(inst))
		require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0.4, 0.2}))
		require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
			Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
			ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
		}}, treelik.None, treelik.RescaleNone))
		out := make([]float64, 1)
		require.NoError(t, inst.CalculateRootLogLikelihoods(2, treelik.None, out))
		return out[0]
	}

	// One compact slot leaves tip 1 its partials storage; the wildcard
	// run keeps tip 1 compact instead, so it takes two slots.
	uniform := run(t, 1, func(inst *treelik.Instance) error {
		return inst.SetTipPartials(1, []float64{1, 1, 1, 1})
	})
	wildcard := run(t, 2, func(inst *treelik.Instance) error {
		// 4 is the wildcard for a four-state alphabet.
		return inst.SetTipStates(1, []int32{4})
	})
	require.InDelta(t, wildcard, uniform, 1e-12)
}

// TestEdgeLogLikelihoods evaluates the same two-tip tree as
// TestRootTwoTipsShortBranches, but rooted on the edge above tip 1:
// the parent buffer carries tip 0's contribution and the child is
// integrated across the edge matrix. Both the resolved-state child and
// the equivalent one-hot partials child must reproduce the root value.
func TestEdgeLogLikelihoods(t *testing.T) {
	build := func(t *testing.T, compact int, setChild func(inst *treelik.Instance) error) float64 {
		inst := jcInstance(t, treelik.Config{
			TipCount: 3, PartialsBufferCount: 2, CompactBufferCount: compact,
			StateCount: 4, PatternCount: 1,
			EigenBufferCount: 1, MatrixBufferCount: 3, CategoryCount: 1,
		})
		require.NoError(t, inst.SetCategoryRates([]float64{1}))
		require.NoError(t, inst.SetCategoryWeights([]float64{1}))
		require.NoError(t, inst.SetStateFrequencies(uniformFreqs))
		require.NoError(t, inst.SetTipStates(0, []int32{0}))
		require.NoError(t, setChild(inst))
		// Tip 2 is an all-ones dummy joined across a zero-length
		// branch, so the parent buffer holds exactly tip 0's column.
		require.NoError(t, inst.SetTipPartials(2, []float64{1, 1, 1, 1}))
		require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1, 2}, nil, nil, []float64{0.1, 0.1, 0}))
		require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
			Destination: 3, DestScale: treelik.None, SourceScale: treelik.None,
			ChildA: 0, ChildAMatrix: 0, ChildB: 2, ChildBMatrix: 2,
		}}, treelik.None, treelik.RescaleNone))

		out := make([]float64, 1)
		require.NoError(t, inst.CalculateEdgeLogLikelihoods(3, 1, 1, treelik.None, out, nil, nil))
		return out[0]
	}

	stateChild := build(t, 2, func(inst *treelik.Instance) error {
		return inst.SetTipStates(1, []int32{1})
	})
	partialsChild := build(t, 1, func(inst *treelik.Instance) error {
		return inst.SetTipPartials(1, []float64{0, 1, 0, 0})
	})

	require.InDelta(t, -4.2247166864431245, stateChild, 1e-10)
	require.InDelta(t, stateChild, partialsChild, 1e-12)
}

// TestEdgeDerivativesNotImplemented reserves the derivative surface.
func TestEdgeDerivativesNotImplemented(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 4, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
	})
	out := make([]float64, 1)
	deriv := make([]float64, 1)
	err := inst.CalculateEdgeLogLikelihoods(2, 0, 0, treelik.None, out, deriv, nil)
	require.ErrorIs(t, err, treelik.ErrNotImplemented)

	err = inst.UpdateTransitionMatrices(0, []int{0}, []int{1}, nil, []float64{0.1})
	require.ErrorIs(t, err, treelik.ErrNotImplemented)
}

// TestRootUnderflowSurfaced forces a zero site likelihood: the observed
// state has equilibrium frequency zero on a zero-length tree.
func TestRootUnderflowSurfaced(t *testing.T) {
	inst := jcInstance(t, treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 4, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
	})
	require.NoError(t, inst.SetCategoryRates([]float64{1}))
	require.NoError(t, inst.SetCategoryWeights([]float64{1}))
	require.NoError(t, inst.SetStateFrequencies([]float64{1, 0, 0, 0}))
	require.NoError(t, inst.SetTipStates(0, []int32{1}))
	require.NoError(t, inst.SetTipStates(1, []int32{1}))
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0, 0}))
	require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
		Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
		ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
	}}, treelik.None, treelik.RescaleNone))

	out := []float64{42}
	err := inst.CalculateRootLogLikelihoods(2, treelik.None, out)
	require.ErrorIs(t, err, treelik.ErrUnderflowOrNaN)
	require.Equal(t, 42.0, out[0], "output must stay untouched on failure")
}

// TestGeneralBackendBinaryAlphabet exercises the general kernels with a
// two-state symmetric model, pinning the closed-form value
// (1 - exp(-4t)) / 4 for opposite observations at distance 2t.
func TestGeneralBackendBinaryAlphabet(t *testing.T) {
	inst, err := treelik.NewInstance(treelik.Config{
		TipCount: 2, PartialsBufferCount: 1, CompactBufferCount: 2,
		StateCount: 2, PatternCount: 1,
		EigenBufferCount: 1, MatrixBufferCount: 2, CategoryCount: 1,
	})
	require.NoError(t, err)
	t.Cleanup(inst.Finalize)
	require.Equal(t, "cpu-general", inst.BackendName())

	// Symmetric binary rate matrix [[-1, 1], [1, -1]].
	require.NoError(t, inst.SetEigenDecomposition(0,
		[]float64{1, 1, 1, -1},
		[]float64{0.5, 0.5, 0.5, -0.5},
		[]float64{0, -2},
	))
	require.NoError(t, inst.SetCategoryRates([]float64{1}))
	require.NoError(t, inst.SetCategoryWeights([]float64{1}))
	require.NoError(t, inst.SetStateFrequencies([]float64{0.5, 0.5}))
	require.NoError(t, inst.SetTipStates(0, []int32{0}))
	require.NoError(t, inst.SetTipStates(1, []int32{1}))
	require.NoError(t, inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{0.2, 0.2}))
	require.NoError(t, inst.UpdatePartials([]treelik.Operation{{
		Destination: 2, DestScale: treelik.None, SourceScale: treelik.None,
		ChildA: 0, ChildAMatrix: 0, ChildB: 1, ChildBMatrix: 1,
	}}, treelik.None, treelik.RescaleNone))

	out := make([]float64, 1)
	require.NoError(t, inst.CalculateRootLogLikelihoods(2, treelik.None, out))
	want := math.Log((1 - math.Exp(-4*0.2)) / 4)
	require.InDelta(t, want, out[0], 1e-12)
}

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

// Package treelik evaluates the likelihood of character data on a binary
// tree under a continuous-time Markov substitution model.
//
// An Instance owns a pool of numeric buffers addressed by dense integer
// handles: partial-likelihood vectors, per-edge transition-matrix blocks,
// tip observations, and per-site scale factors. The caller describes a
// tree evaluation as a post-order batch of node-update operations; the
// engine propagates partial likelihoods up the tree and integrates the
// root (or an edge) against rate-category weights and equilibrium state
// frequencies to produce per-site log-likelihoods.
//
// Two scalar kernel sets are provided: a general one for any alphabet
// size and an unrolled specialization for four-state (nucleotide) data.
// The factory selects the first registered kernel set that accepts the
// configuration; four-state data automatically gets the fast path.
//
// Typical usage:
//
//	inst, err := treelik.NewInstance(treelik.Config{
//	    TipCount:            2,
//	    PartialsBufferCount: 1,
//	    CompactBufferCount:  2,
//	    StateCount:          4,
//	    PatternCount:        n,
//	    EigenBufferCount:    1,
//	    MatrixBufferCount:   2,
//	    CategoryCount:       1,
//	    ScaleBufferCount:    1,
//	})
//	if err != nil { ... }
//	defer inst.Finalize()
//
//	inst.SetTipStates(0, states0)
//	inst.SetTipStates(1, states1)
//	inst.SetEigenDecomposition(0, u, uInv, lambda)
//	inst.SetCategoryRates([]float64{1})
//	inst.SetCategoryWeights([]float64{1})
//	inst.SetStateFrequencies([]float64{0.25, 0.25, 0.25, 0.25})
//	inst.UpdateTransitionMatrices(0, []int{0, 1}, nil, nil, []float64{t0, t1})
//	inst.UpdatePartials([]treelik.Operation{{
//	    Destination:   2,
//	    ChildA:        0, ChildAMatrix: 0,
//	    ChildB:        1, ChildBMatrix: 1,
//	    DestScale:     treelik.None,
//	    SourceScale:   treelik.None,
//	}}, treelik.None, treelik.RescaleNone)
//
//	logLik := make([]float64, n)
//	err = inst.CalculateRootLogLikelihoods(2, treelik.None, logLik)
//
// An Instance is not safe for concurrent use; distinct instances are
// fully independent.
package treelik

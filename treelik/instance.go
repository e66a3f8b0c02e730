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

package treelik

import (
	"fmt"
	"math"
	"runtime"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ajroetker/go-treelik/treelik/contrib/workerpool"
)

// sumTolerance bounds how far category weights and equilibrium
// frequencies may drift from summing to exactly 1.
const sumTolerance = 1e-6

// tipKind records which representation a tip slot carries.
type tipKind uint8

const (
	tipUnset tipKind = iota
	tipHasStates
	tipHasPartials
)

// Instance owns every buffer of one likelihood computation: partial
// vectors, tip observations, transition-matrix blocks, scale buffers and
// eigen-decomposition slots, all addressed by dense integer handles. An
// Instance is not safe for concurrent use.
type Instance struct {
	cfg Config
	ks  kernelSet

	// partials holds TipCount tip slots followed by PartialsBufferCount
	// internal buffers. A tip slot is nil until the tip is given
	// ambiguity partials.
	partials [][]float64
	tipState [][]int32 // per tip; nil unless the tip carries states
	tipKinds []tipKind

	// Storage pools committed at creation; tips draw from them when
	// their representation is chosen.
	freeCompact  [][]int32
	freePartials [][]float64

	matrices [][]float64
	scales   [][]float64
	eigens   []eigenDecomposition

	categoryRates   []float64
	categoryWeights []float64
	frequencies     []float64

	// Scratch reused across calls; never escapes the instance.
	integration []float64
	siteLik     []float64
	expScratch  []float64
	matScratch  *mat.Dense
	matResult   *mat.Dense

	pool *workerpool.Pool

	snap *snapshot

	finalized bool
}

// NewInstance preallocates all buffers for the given configuration and
// selects the first registered backend that accepts it.
func NewInstance(cfg Config) (inst *Instance, err error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// A length past the allocator's limit surfaces as a makeslice
	// panic, not a nil return.
	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()
	ks, err := selectKernels(cfg)
	if err != nil {
		return nil, err
	}

	inst = &Instance{
		cfg:      cfg,
		ks:       ks,
		partials: make([][]float64, cfg.TipCount+cfg.PartialsBufferCount),
		tipState: make([][]int32, cfg.TipCount),
		tipKinds: make([]tipKind, cfg.TipCount),
		matrices: make([][]float64, cfg.MatrixBufferCount),
		scales:   make([][]float64, cfg.ScaleBufferCount),
		eigens:   make([]eigenDecomposition, cfg.EigenBufferCount),

		integration: make([]float64, cfg.PatternCount*cfg.StateCount),
		siteLik:     make([]float64, cfg.PatternCount),
		expScratch:  make([]float64, cfg.StateCount),
		matScratch:  mat.NewDense(cfg.StateCount, cfg.StateCount, nil),
		matResult:   mat.NewDense(cfg.StateCount, cfg.StateCount, nil),
	}

	for i := cfg.TipCount; i < len(inst.partials); i++ {
		inst.partials[i] = make([]float64, cfg.partialSize())
	}
	inst.freeCompact = make([][]int32, 0, cfg.CompactBufferCount)
	for i := 0; i < cfg.CompactBufferCount; i++ {
		inst.freeCompact = append(inst.freeCompact, make([]int32, cfg.PatternCount))
	}
	inst.freePartials = make([][]float64, 0, cfg.TipCount-cfg.CompactBufferCount)
	for i := 0; i < cfg.TipCount-cfg.CompactBufferCount; i++ {
		inst.freePartials = append(inst.freePartials, make([]float64, cfg.partialSize()))
	}
	for i := range inst.matrices {
		inst.matrices[i] = make([]float64, cfg.matrixBlockSize())
	}
	for i := range inst.scales {
		inst.scales[i] = make([]float64, cfg.PatternCount)
	}

	if cfg.Preferences.Has(FlagAsynch) || cfg.Requirements.Has(FlagAsynch) {
		inst.pool = workerpool.New(runtime.GOMAXPROCS(0))
	}

	log.WithField("backend", ks.name()).
		WithField("tips", cfg.TipCount).
		WithField("patterns", cfg.PatternCount).
		WithField("categories", cfg.CategoryCount).
		Debug("instance created")
	return inst, nil
}

// Finalize releases the worker pool and drops every buffer reference.
// The instance must not be used afterwards. Safe to call twice.
func (inst *Instance) Finalize() {
	if inst.finalized {
		return
	}
	inst.finalized = true
	if inst.pool != nil {
		inst.pool.Close()
		inst.pool = nil
	}
	inst.partials = nil
	inst.tipState = nil
	inst.matrices = nil
	inst.scales = nil
	inst.eigens = nil
	inst.snap = nil
	log.Debug("instance finalized")
}

// BackendName identifies the selected kernel set, e.g. "cpu-4state".
func (inst *Instance) BackendName() string { return inst.ks.name() }

// BackendFlags returns the capability flags of the selected kernel set.
func (inst *Instance) BackendFlags() Flags { return inst.ks.capabilities() }

// SetTipStates assigns a resolved state vector to a tip. Values must lie
// in [0, StateCount]; the value StateCount is the wildcard for unknown
// or gap observations. Replaces any ambiguity partials the tip carried.
func (inst *Instance) SetTipStates(tipIndex int, states []int32) error {
	if tipIndex < 0 || tipIndex >= inst.cfg.TipCount {
		return fmt.Errorf("%w: tip %d of %d", ErrBadHandle, tipIndex, inst.cfg.TipCount)
	}
	if len(states) != inst.cfg.PatternCount {
		return fmt.Errorf("%w: %d states for %d patterns", ErrDimensionMismatch, len(states), inst.cfg.PatternCount)
	}
	for k, s := range states {
		if s < 0 || int(s) > inst.cfg.StateCount {
			return fmt.Errorf("%w: state %d at pattern %d", ErrInvalidValue, s, k)
		}
	}

	if inst.tipKinds[tipIndex] != tipHasStates {
		if len(inst.freeCompact) == 0 {
			return fmt.Errorf("%w: no compact tip buffer remains", ErrOutOfMemory)
		}
		buf := inst.freeCompact[len(inst.freeCompact)-1]
		inst.freeCompact = inst.freeCompact[:len(inst.freeCompact)-1]
		if inst.tipKinds[tipIndex] == tipHasPartials {
			inst.freePartials = append(inst.freePartials, inst.partials[tipIndex])
			inst.partials[tipIndex] = nil
		}
		inst.tipState[tipIndex] = buf
		inst.tipKinds[tipIndex] = tipHasStates
	}
	copy(inst.tipState[tipIndex], states)
	return nil
}

// SetTipPartials assigns ambiguity-weighted partials to a tip, laid out
// [category][pattern][state]. Replaces any state vector the tip carried.
func (inst *Instance) SetTipPartials(tipIndex int, partials []float64) error {
	if tipIndex < 0 || tipIndex >= inst.cfg.TipCount {
		return fmt.Errorf("%w: tip %d of %d", ErrBadHandle, tipIndex, inst.cfg.TipCount)
	}
	if len(partials) != inst.cfg.partialSize() {
		return fmt.Errorf("%w: %d partials, want %d", ErrDimensionMismatch, len(partials), inst.cfg.partialSize())
	}
	for i, p := range partials {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: partial %g at offset %d", ErrInvalidValue, p, i)
		}
	}

	if inst.tipKinds[tipIndex] != tipHasPartials {
		if len(inst.freePartials) == 0 {
			return fmt.Errorf("%w: no tip partials buffer remains", ErrOutOfMemory)
		}
		buf := inst.freePartials[len(inst.freePartials)-1]
		inst.freePartials = inst.freePartials[:len(inst.freePartials)-1]
		if inst.tipKinds[tipIndex] == tipHasStates {
			inst.freeCompact = append(inst.freeCompact, inst.tipState[tipIndex])
			inst.tipState[tipIndex] = nil
		}
		inst.partials[tipIndex] = buf
		inst.tipKinds[tipIndex] = tipHasPartials
	}
	copy(inst.partials[tipIndex], partials)
	return nil
}

// SetCategoryRates sets the per-category substitution rate multipliers.
func (inst *Instance) SetCategoryRates(rates []float64) error {
	if len(rates) != inst.cfg.CategoryCount {
		return fmt.Errorf("%w: %d rates for %d categories", ErrDimensionMismatch, len(rates), inst.cfg.CategoryCount)
	}
	for l, r := range rates {
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: rate %g for category %d", ErrInvalidValue, r, l)
		}
	}
	inst.categoryRates = append(inst.categoryRates[:0], rates...)
	return nil
}

// SetCategoryWeights sets the per-category mixture weights, which must
// sum to 1 within tolerance.
func (inst *Instance) SetCategoryWeights(weights []float64) error {
	if len(weights) != inst.cfg.CategoryCount {
		return fmt.Errorf("%w: %d weights for %d categories", ErrDimensionMismatch, len(weights), inst.cfg.CategoryCount)
	}
	if s := floats.Sum(weights); math.Abs(s-1) > sumTolerance || math.IsNaN(s) {
		return fmt.Errorf("%w: category weights sum to %g", ErrInvalidValue, s)
	}
	inst.categoryWeights = append(inst.categoryWeights[:0], weights...)
	return nil
}

// SetStateFrequencies sets the equilibrium state frequencies, which must
// sum to 1 within tolerance.
func (inst *Instance) SetStateFrequencies(freqs []float64) error {
	if len(freqs) != inst.cfg.StateCount {
		return fmt.Errorf("%w: %d frequencies for %d states", ErrDimensionMismatch, len(freqs), inst.cfg.StateCount)
	}
	if s := floats.Sum(freqs); math.Abs(s-1) > sumTolerance || math.IsNaN(s) {
		return fmt.Errorf("%w: state frequencies sum to %g", ErrInvalidValue, s)
	}
	inst.frequencies = append(inst.frequencies[:0], freqs...)
	return nil
}

// GetPartials copies the partial buffer at handle into out.
func (inst *Instance) GetPartials(handle int, out []float64) error {
	buf, err := inst.partialBuffer(handle)
	if err != nil {
		return err
	}
	if len(out) != inst.cfg.partialSize() {
		return fmt.Errorf("%w: out length %d, want %d", ErrDimensionMismatch, len(out), inst.cfg.partialSize())
	}
	copy(out, buf)
	return nil
}

// GetScaleFactors copies the scale buffer at scaleIndex into out.
func (inst *Instance) GetScaleFactors(scaleIndex int, out []float64) error {
	if scaleIndex < 0 || scaleIndex >= len(inst.scales) {
		return fmt.Errorf("%w: scale buffer %d of %d", ErrBadHandle, scaleIndex, len(inst.scales))
	}
	if len(out) != inst.cfg.PatternCount {
		return fmt.Errorf("%w: out length %d, want %d", ErrDimensionMismatch, len(out), inst.cfg.PatternCount)
	}
	copy(out, inst.scales[scaleIndex])
	return nil
}

// partialBuffer resolves a partials-space handle: a tip slot carrying
// ambiguity partials, or an internal buffer.
func (inst *Instance) partialBuffer(handle int) ([]float64, error) {
	if handle < 0 || handle >= len(inst.partials) {
		return nil, fmt.Errorf("%w: partials handle %d of %d", ErrBadHandle, handle, len(inst.partials))
	}
	if handle < inst.cfg.TipCount && inst.tipKinds[handle] != tipHasPartials {
		return nil, fmt.Errorf("%w: tip %d carries no partials", ErrBadHandle, handle)
	}
	return inst.partials[handle], nil
}

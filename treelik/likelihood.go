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
)

// CalculateRootLogLikelihoods integrates the partial buffer at
// rootIndex over category weights and equilibrium frequencies, writing
// the per-site log-likelihood into outLogLik. scaleIndex names the
// cumulative log-scale buffer added per site, or None.
//
// Returns ErrUnderflowOrNaN — without writing outLogLik — when any
// site's frequency-weighted sum is non-positive or non-finite; the
// caller should enable rescaling and recompute.
func (inst *Instance) CalculateRootLogLikelihoods(rootIndex, scaleIndex int, outLogLik []float64) error {
	root, err := inst.partialBuffer(rootIndex)
	if err != nil {
		return err
	}
	cum, err := inst.optionalScale(scaleIndex)
	if err != nil {
		return err
	}
	if err := inst.checkIntegrationInputs(len(outLogLik)); err != nil {
		return err
	}

	inst.ks.integrateRoot(root, inst.categoryWeights, inst.frequencies, inst.integration, inst.siteLik)
	return inst.logWithScale(cum, outLogLik)
}

// CalculateEdgeLogLikelihoods integrates the parent partial buffer
// against the child across the transition matrix at matrixIndex,
// applying category weights, frequencies and the cumulative scale as in
// CalculateRootLogLikelihoods. A child tip carrying resolved states
// takes the direct state-lookup path; any other child integrates its
// partials through the matrix.
//
// outFirstDeriv and outSecondDeriv are reserved for branch-length
// derivatives and must be nil; passing them returns ErrNotImplemented.
func (inst *Instance) CalculateEdgeLogLikelihoods(parentIndex, childIndex, matrixIndex, scaleIndex int, outLogLik, outFirstDeriv, outSecondDeriv []float64) error {
	if outFirstDeriv != nil || outSecondDeriv != nil {
		return fmt.Errorf("%w: branch-length derivatives", ErrNotImplemented)
	}
	if parentIndex < inst.cfg.TipCount {
		return fmt.Errorf("%w: edge parent %d must be an internal partials buffer", ErrBadHandle, parentIndex)
	}
	parent, err := inst.partialBuffer(parentIndex)
	if err != nil {
		return err
	}
	if childIndex < 0 || childIndex >= len(inst.partials) {
		return fmt.Errorf("%w: child handle %d of %d", ErrBadHandle, childIndex, len(inst.partials))
	}
	if childIndex < inst.cfg.TipCount && inst.tipKinds[childIndex] == tipUnset {
		return fmt.Errorf("%w: tip %d carries no observation", ErrBadHandle, childIndex)
	}
	if matrixIndex < 0 || matrixIndex >= len(inst.matrices) {
		return fmt.Errorf("%w: matrix handle %d of %d", ErrBadHandle, matrixIndex, len(inst.matrices))
	}
	cum, err := inst.optionalScale(scaleIndex)
	if err != nil {
		return err
	}
	if err := inst.checkIntegrationInputs(len(outLogLik)); err != nil {
		return err
	}

	matrix := inst.matrices[matrixIndex]
	childStates, childPartials := inst.childOperand(childIndex)
	if childStates != nil {
		inst.ks.integrateEdgeStates(parent, childStates, matrix, inst.categoryWeights, inst.frequencies, inst.integration, inst.siteLik)
	} else {
		inst.ks.integrateEdgePartials(parent, childPartials, matrix, inst.categoryWeights, inst.frequencies, inst.integration, inst.siteLik)
	}
	return inst.logWithScale(cum, outLogLik)
}

func (inst *Instance) checkIntegrationInputs(outLen int) error {
	if outLen != inst.cfg.PatternCount {
		return fmt.Errorf("%w: out length %d, want %d", ErrDimensionMismatch, outLen, inst.cfg.PatternCount)
	}
	if inst.categoryWeights == nil {
		return fmt.Errorf("%w: category weights not set", ErrInvalidValue)
	}
	if inst.frequencies == nil {
		return fmt.Errorf("%w: state frequencies not set", ErrInvalidValue)
	}
	return nil
}

func (inst *Instance) optionalScale(scaleIndex int) ([]float64, error) {
	if scaleIndex == None {
		return nil, nil
	}
	return inst.scaleBuffer(scaleIndex)
}

// logWithScale validates the linear-domain site likelihoods, then takes
// logs and adds the cumulative per-site scale. outLogLik stays
// untouched when any site fails.
func (inst *Instance) logWithScale(cum []float64, outLogLik []float64) error {
	for k, s := range inst.siteLik {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: site %d likelihood %g", ErrUnderflowOrNaN, k, s)
		}
	}
	if cum != nil {
		for k, s := range inst.siteLik {
			outLogLik[k] = math.Log(s) + cum[k]
		}
		return nil
	}
	for k, s := range inst.siteLik {
		outLogLik[k] = math.Log(s)
	}
	return nil
}

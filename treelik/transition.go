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

	"gonum.org/v1/gonum/mat"
)

// UpdateTransitionMatrices fills one matrix block per requested edge
// with M_l = U · diag(exp(λ · rate_l · t)) · U⁻¹ for every rate
// category l. Matrices are written with the padded row stride; the
// trailing wildcard column is set to 1.
//
// firstDerivIndices and secondDerivIndices are reserved for transition-
// matrix derivatives and must be nil; passing them returns
// ErrNotImplemented.
func (inst *Instance) UpdateTransitionMatrices(eigenIndex int, matrixIndices []int, firstDerivIndices, secondDerivIndices []int, branchLengths []float64) error {
	if firstDerivIndices != nil || secondDerivIndices != nil {
		return fmt.Errorf("%w: transition-matrix derivatives", ErrNotImplemented)
	}
	if eigenIndex < 0 || eigenIndex >= len(inst.eigens) {
		return fmt.Errorf("%w: eigen slot %d of %d", ErrBadHandle, eigenIndex, len(inst.eigens))
	}
	eig := &inst.eigens[eigenIndex]
	if !eig.set {
		return fmt.Errorf("%w: eigen slot %d is empty", ErrBadHandle, eigenIndex)
	}
	if len(matrixIndices) != len(branchLengths) {
		return fmt.Errorf("%w: %d matrix indices, %d branch lengths", ErrDimensionMismatch, len(matrixIndices), len(branchLengths))
	}
	if inst.categoryRates == nil {
		return fmt.Errorf("%w: category rates not set", ErrInvalidValue)
	}
	for i, idx := range matrixIndices {
		if idx < 0 || idx >= len(inst.matrices) {
			return fmt.Errorf("%w: matrix handle %d of %d", ErrBadHandle, idx, len(inst.matrices))
		}
		if t := branchLengths[i]; t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: branch length %g for matrix %d", ErrInvalidValue, t, idx)
		}
	}

	for i, idx := range matrixIndices {
		inst.buildMatrixBlock(eig, inst.matrices[idx], branchLengths[i])
	}
	return nil
}

// buildMatrixBlock reconstructs the per-category transition matrices of
// one edge into block.
func (inst *Instance) buildMatrixBlock(eig *eigenDecomposition, block []float64, t float64) {
	n := inst.cfg.StateCount
	padded := inst.cfg.paddedStates()
	u := mat.NewDense(n, n, eig.u)
	uInv := mat.NewDense(n, n, eig.uInv)

	for l := 0; l < inst.cfg.CategoryCount; l++ {
		dist := inst.categoryRates[l] * t
		for i := 0; i < n; i++ {
			inst.expScratch[i] = math.Exp(eig.lambda[i] * dist)
		}
		d := mat.NewDiagDense(n, inst.expScratch)

		inst.matScratch.Mul(u, d)
		inst.matResult.Mul(inst.matScratch, uInv)

		base := l * inst.cfg.matrixSize()
		for i := 0; i < n; i++ {
			row := inst.matResult.RawRowView(i)
			copy(block[base+i*padded:base+i*padded+n], row)
			block[base+i*padded+n] = 1.0
		}
	}
}

// SetTransitionMatrix writes a matrix block directly, bypassing the
// builder. values holds CategoryCount unpadded StateCount × StateCount
// matrices in row-major category order; they are re-padded on ingestion.
func (inst *Instance) SetTransitionMatrix(matrixIndex int, values []float64) error {
	if matrixIndex < 0 || matrixIndex >= len(inst.matrices) {
		return fmt.Errorf("%w: matrix handle %d of %d", ErrBadHandle, matrixIndex, len(inst.matrices))
	}
	n := inst.cfg.StateCount
	want := inst.cfg.CategoryCount * n * n
	if len(values) != want {
		return fmt.Errorf("%w: %d matrix values, want %d", ErrDimensionMismatch, len(values), want)
	}
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite matrix entry %g at offset %d", ErrInvalidValue, x, i)
		}
	}

	padded := inst.cfg.paddedStates()
	block := inst.matrices[matrixIndex]
	for l := 0; l < inst.cfg.CategoryCount; l++ {
		src := l * n * n
		base := l * inst.cfg.matrixSize()
		for i := 0; i < n; i++ {
			copy(block[base+i*padded:base+i*padded+n], values[src+i*n:src+(i+1)*n])
			block[base+i*padded+n] = 1.0
		}
	}
	return nil
}

// GetTransitionMatrix copies a matrix block into out in the unpadded
// caller layout of SetTransitionMatrix.
func (inst *Instance) GetTransitionMatrix(matrixIndex int, out []float64) error {
	if matrixIndex < 0 || matrixIndex >= len(inst.matrices) {
		return fmt.Errorf("%w: matrix handle %d of %d", ErrBadHandle, matrixIndex, len(inst.matrices))
	}
	n := inst.cfg.StateCount
	want := inst.cfg.CategoryCount * n * n
	if len(out) != want {
		return fmt.Errorf("%w: out length %d, want %d", ErrDimensionMismatch, len(out), want)
	}

	padded := inst.cfg.paddedStates()
	block := inst.matrices[matrixIndex]
	for l := 0; l < inst.cfg.CategoryCount; l++ {
		dst := l * n * n
		base := l * inst.cfg.matrixSize()
		for i := 0; i < n; i++ {
			copy(out[dst+i*n:dst+(i+1)*n], block[base+i*padded:base+i*padded+n])
		}
	}
	return nil
}

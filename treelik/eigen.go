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

// eigenDecomposition is one slot of a real eigen-decomposed rate matrix
// Q = U · diag(λ) · U⁻¹. The model is assumed diagonalizable over the
// reals; the caller supplies the decomposition.
type eigenDecomposition struct {
	u      []float64 // StateCount × StateCount, row-major
	uInv   []float64 // StateCount × StateCount, row-major
	lambda []float64 // StateCount
	set    bool
}

// SetEigenDecomposition stores an eigen-decomposition into the given
// slot. u and uInv are row-major StateCount × StateCount matrices;
// lambda holds the StateCount eigenvalues.
func (inst *Instance) SetEigenDecomposition(eigenIndex int, u, uInv, lambda []float64) error {
	if eigenIndex < 0 || eigenIndex >= len(inst.eigens) {
		return fmt.Errorf("%w: eigen slot %d of %d", ErrBadHandle, eigenIndex, len(inst.eigens))
	}
	n := inst.cfg.StateCount
	if len(u) != n*n || len(uInv) != n*n {
		return fmt.Errorf("%w: eigenvector matrices want %d elements, got %d and %d", ErrDimensionMismatch, n*n, len(u), len(uInv))
	}
	if len(lambda) != n {
		return fmt.Errorf("%w: %d eigenvalues for %d states", ErrDimensionMismatch, len(lambda), n)
	}
	for _, vals := range [][]float64{u, uInv, lambda} {
		for i, x := range vals {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: non-finite eigen entry %g at offset %d", ErrInvalidValue, x, i)
			}
		}
	}

	slot := &inst.eigens[eigenIndex]
	slot.u = append(slot.u[:0], u...)
	slot.uInv = append(slot.uInv[:0], uInv...)
	slot.lambda = append(slot.lambda[:0], lambda...)
	slot.set = true
	return nil
}

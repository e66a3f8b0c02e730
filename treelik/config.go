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

// None marks an absent optional handle in operation descriptors and
// likelihood calls (no scale buffer, no derivative outputs).
const None = -1

// Config fixes the dimensions and buffer counts of an Instance. All
// buffers are preallocated at creation and their handles stay stable for
// the instance lifetime.
type Config struct {
	// TipCount is the number of leaf nodes. Tip handles occupy
	// [0, TipCount) in the partials handle space.
	TipCount int

	// PartialsBufferCount is the number of internal partial buffers,
	// with handles [TipCount, TipCount+PartialsBufferCount).
	PartialsBufferCount int

	// CompactBufferCount is the number of tips that will carry resolved
	// state vectors rather than ambiguity partials.
	CompactBufferCount int

	// StateCount is the alphabet size (4 for nucleotides).
	StateCount int

	// PatternCount is the number of site patterns.
	PatternCount int

	// EigenBufferCount is the number of eigen-decomposition slots.
	EigenBufferCount int

	// MatrixBufferCount is the number of transition-matrix blocks.
	MatrixBufferCount int

	// CategoryCount is the number of rate categories.
	CategoryCount int

	// ScaleBufferCount is the number of per-site scale buffers.
	ScaleBufferCount int

	// Preferences never exclude a backend and do not change which
	// backend is selected. FlagAsynch here enables the worker pool for
	// parallel operation batches; other preference flags have no effect.
	Preferences Flags

	// Requirements exclude any backend that does not provide every set
	// flag.
	Requirements Flags
}

// paddedStates returns the row stride of a stored transition matrix: the
// state count plus the trailing wildcard column. Four-state uses 5.
func (c Config) paddedStates() int {
	return c.StateCount + 1
}

// partialSize returns the element count of one partial buffer.
func (c Config) partialSize() int {
	return c.PatternCount * c.StateCount * c.CategoryCount
}

// matrixSize returns the element count of one per-category matrix.
func (c Config) matrixSize() int {
	return c.StateCount * c.paddedStates()
}

// matrixBlockSize returns the element count of one transition-matrix
// block (all categories).
func (c Config) matrixBlockSize() int {
	return c.CategoryCount * c.matrixSize()
}

func (c Config) validate() error {
	switch {
	case c.TipCount < 2:
		return fmt.Errorf("%w: tip count %d (need at least 2)", ErrInvalidValue, c.TipCount)
	case c.PartialsBufferCount < 1:
		return fmt.Errorf("%w: partials buffer count %d", ErrInvalidValue, c.PartialsBufferCount)
	case c.CompactBufferCount < 0 || c.CompactBufferCount > c.TipCount:
		return fmt.Errorf("%w: compact buffer count %d with %d tips", ErrInvalidValue, c.CompactBufferCount, c.TipCount)
	case c.StateCount < 2:
		return fmt.Errorf("%w: state count %d", ErrInvalidValue, c.StateCount)
	case c.PatternCount < 1:
		return fmt.Errorf("%w: pattern count %d", ErrInvalidValue, c.PatternCount)
	case c.EigenBufferCount < 0:
		return fmt.Errorf("%w: eigen buffer count %d", ErrInvalidValue, c.EigenBufferCount)
	case c.MatrixBufferCount < 1:
		return fmt.Errorf("%w: matrix buffer count %d", ErrInvalidValue, c.MatrixBufferCount)
	case c.CategoryCount < 1:
		return fmt.Errorf("%w: category count %d", ErrInvalidValue, c.CategoryCount)
	case c.ScaleBufferCount < 0:
		return fmt.Errorf("%w: scale buffer count %d", ErrInvalidValue, c.ScaleBufferCount)
	}

	// Guard the total allocation before touching the allocator. Element
	// counts that overflow int cannot be satisfied on this host.
	buffers := c.TipCount + c.PartialsBufferCount
	perPartial, ok := mulNoOverflow(c.PatternCount, c.StateCount, c.CategoryCount)
	if !ok {
		return fmt.Errorf("%w: partial buffer of %d x %d x %d elements", ErrOutOfMemory, c.PatternCount, c.StateCount, c.CategoryCount)
	}
	if _, ok := mulNoOverflow(buffers, perPartial); !ok {
		return fmt.Errorf("%w: %d partial buffers of %d elements", ErrOutOfMemory, buffers, perPartial)
	}
	if _, ok := mulNoOverflow(c.MatrixBufferCount, c.CategoryCount, c.matrixSize()); !ok {
		return fmt.Errorf("%w: %d matrix blocks", ErrOutOfMemory, c.MatrixBufferCount)
	}
	return nil
}

// mulNoOverflow multiplies positive factors, reporting whether the
// product stays within int range.
func mulNoOverflow(factors ...int) (int, bool) {
	product := 1
	for _, f := range factors {
		if f != 0 && product > math.MaxInt/f {
			return 0, false
		}
		product *= f
	}
	return product, true
}

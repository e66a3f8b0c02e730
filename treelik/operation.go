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

import "fmt"

// RescaleMode selects how a batch of operations manages per-site scale
// factors.
type RescaleMode int

const (
	// RescaleNone stores raw products; the caller is responsible for
	// underflow on deep trees.
	RescaleNone RescaleMode = iota

	// RescaleFixed divides each destination entry by the precomputed
	// per-site factors in the operation's SourceScale buffer, adding
	// log(scale) into the cumulative buffer.
	RescaleFixed

	// RescaleDynamic computes each destination normally, takes the
	// per-site maximum across states and categories as the scale
	// factor, rescales in place into the operation's DestScale buffer
	// and accumulates its log.
	RescaleDynamic
)

// Operation describes one node update: combine two child buffers across
// their transition matrices into a destination partial buffer. Children
// are partials-space handles; a tip carrying a resolved state vector is
// dispatched to the states kernels, anything else to the partials
// kernels.
type Operation struct {
	// Destination is the internal partial buffer to fill.
	Destination int

	// DestScale receives the per-site scale factors found by dynamic
	// rescaling, or None.
	DestScale int

	// SourceScale holds precomputed per-site scale factors applied
	// under RescaleFixed, or None.
	SourceScale int

	ChildA       int
	ChildAMatrix int
	ChildB       int
	ChildBMatrix int
}

// validateOperation checks every handle of one descriptor against the
// instance configuration. Called for the whole batch before any
// destination is written.
func (inst *Instance) validateOperation(op Operation, mode RescaleMode) error {
	if op.Destination < inst.cfg.TipCount || op.Destination >= len(inst.partials) {
		return fmt.Errorf("%w: destination %d is not an internal partials buffer", ErrBadHandle, op.Destination)
	}
	for _, child := range []int{op.ChildA, op.ChildB} {
		if child < 0 || child >= len(inst.partials) {
			return fmt.Errorf("%w: child handle %d of %d", ErrBadHandle, child, len(inst.partials))
		}
		if child < inst.cfg.TipCount && inst.tipKinds[child] == tipUnset {
			return fmt.Errorf("%w: tip %d carries no observation", ErrBadHandle, child)
		}
	}
	for _, m := range []int{op.ChildAMatrix, op.ChildBMatrix} {
		if m < 0 || m >= len(inst.matrices) {
			return fmt.Errorf("%w: matrix handle %d of %d", ErrBadHandle, m, len(inst.matrices))
		}
	}
	switch mode {
	case RescaleFixed:
		if op.SourceScale < 0 || op.SourceScale >= len(inst.scales) {
			return fmt.Errorf("%w: source scale buffer %d of %d", ErrBadHandle, op.SourceScale, len(inst.scales))
		}
	case RescaleDynamic:
		if op.DestScale < 0 || op.DestScale >= len(inst.scales) {
			return fmt.Errorf("%w: destination scale buffer %d of %d", ErrBadHandle, op.DestScale, len(inst.scales))
		}
	}
	return nil
}

// childOperand resolves a child handle to either a state vector or a
// partial buffer.
func (inst *Instance) childOperand(handle int) (states []int32, partials []float64) {
	if handle < inst.cfg.TipCount && inst.tipKinds[handle] == tipHasStates {
		return inst.tipState[handle], nil
	}
	return nil, inst.partials[handle]
}

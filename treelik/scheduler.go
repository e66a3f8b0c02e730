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

// UpdatePartials executes a batch of node updates in the order supplied,
// which must already satisfy dependencies: every child buffer is a tip
// or was written by an earlier operation (possibly in a prior batch).
//
// The whole batch is validated before any destination is written; on a
// validation error no buffer changes. cumulativeScaleIndex designates
// the cumulative log-scale buffer updated under RescaleFixed and
// RescaleDynamic, or None.
//
// When the instance was created with FlagAsynch, operations whose
// dependencies allow it are executed concurrently on the worker pool;
// the visible state after return is identical to serial execution.
func (inst *Instance) UpdatePartials(ops []Operation, cumulativeScaleIndex int, mode RescaleMode) error {
	if cumulativeScaleIndex != None && (cumulativeScaleIndex < 0 || cumulativeScaleIndex >= len(inst.scales)) {
		return fmt.Errorf("%w: cumulative scale buffer %d of %d", ErrBadHandle, cumulativeScaleIndex, len(inst.scales))
	}
	for i, op := range ops {
		if err := inst.validateOperation(op, mode); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	var cumulative []float64
	if cumulativeScaleIndex != None {
		cumulative = inst.scales[cumulativeScaleIndex]
	}

	if inst.pool != nil && len(ops) > 1 {
		if waves, ok := planWaves(ops); ok {
			for _, wave := range waves {
				inst.pool.ParallelFor(len(wave), func(start, end int) {
					for _, i := range wave[start:end] {
						inst.executeKernel(ops[i], mode)
					}
				})
				// The cumulative buffer is shared across the batch;
				// fold each wave's factors in serially.
				for _, i := range wave {
					inst.accumulateOpScale(ops[i], cumulative, mode)
				}
			}
			return nil
		}
	}

	for _, op := range ops {
		inst.executeKernel(op, mode)
		inst.accumulateOpScale(op, cumulative, mode)
	}
	return nil
}

// executeKernel classifies the two children and dispatches the matching
// kernel variant. Writes the destination partials and, under dynamic
// rescaling, the destination scale buffer; nothing else.
func (inst *Instance) executeKernel(op Operation, mode RescaleMode) {
	dest := inst.partials[op.Destination]
	statesA, partialsA := inst.childOperand(op.ChildA)
	statesB, partialsB := inst.childOperand(op.ChildB)
	matA := inst.matrices[op.ChildAMatrix]
	matB := inst.matrices[op.ChildBMatrix]

	if mode == RescaleFixed {
		scale := inst.scales[op.SourceScale]
		switch {
		case statesA != nil && statesB != nil:
			inst.ks.statesStatesScaled(dest, statesA, matA, statesB, matB, scale)
		case statesA != nil:
			inst.ks.statesPartialsScaled(dest, statesA, matA, partialsB, matB, scale)
		case statesB != nil:
			inst.ks.statesPartialsScaled(dest, statesB, matB, partialsA, matA, scale)
		default:
			inst.ks.partialsPartialsScaled(dest, partialsA, matA, partialsB, matB, scale)
		}
		return
	}

	switch {
	case statesA != nil && statesB != nil:
		inst.ks.statesStates(dest, statesA, matA, statesB, matB)
	case statesA != nil:
		inst.ks.statesPartials(dest, statesA, matA, partialsB, matB)
	case statesB != nil:
		inst.ks.statesPartials(dest, statesB, matB, partialsA, matA)
	default:
		inst.ks.partialsPartials(dest, partialsA, matA, partialsB, matB)
	}

	if mode == RescaleDynamic {
		inst.rescaleInPlace(dest, inst.scales[op.DestScale])
	}
}

// rescaleInPlace finds the per-site maximum across states and
// categories, divides the buffer by it and records the factors. A site
// whose entries are all zero keeps factor 1 so the log stays finite.
func (inst *Instance) rescaleInPlace(partials, scale []float64) {
	states := inst.cfg.StateCount
	patterns := inst.cfg.PatternCount
	categoryStride := patterns * states

	for k := 0; k < patterns; k++ {
		maxVal := 0.0
		for l := 0; l < inst.cfg.CategoryCount; l++ {
			base := l*categoryStride + k*states
			for i := 0; i < states; i++ {
				if v := partials[base+i]; v > maxVal {
					maxVal = v
				}
			}
		}
		if maxVal == 0 {
			maxVal = 1
		}
		scale[k] = maxVal
		if maxVal != 1 {
			inv := 1 / maxVal
			for l := 0; l < inst.cfg.CategoryCount; l++ {
				base := l*categoryStride + k*states
				for i := 0; i < states; i++ {
					partials[base+i] *= inv
				}
			}
		}
	}
}

// accumulateOpScale folds one operation's per-site log factors into the
// cumulative buffer.
func (inst *Instance) accumulateOpScale(op Operation, cumulative []float64, mode RescaleMode) {
	if cumulative == nil {
		return
	}
	var scale []float64
	switch mode {
	case RescaleFixed:
		scale = inst.scales[op.SourceScale]
	case RescaleDynamic:
		scale = inst.scales[op.DestScale]
	default:
		return
	}
	for k, s := range scale {
		cumulative[k] += math.Log(s)
	}
}

// planWaves groups the batch into dependency waves for parallel
// execution. It refuses (ok=false, forcing serial execution) when the
// batch is not safely reorderable: a descriptor reads a destination of a
// later descriptor, two descriptors share a destination partial, or two
// descriptors share a destination scale buffer.
func planWaves(ops []Operation) (waves [][]int, ok bool) {
	// written maps each destination partial to its producing op index;
	// writtenScale tracks destination scale buffers for duplicates.
	written := make(map[int]int, len(ops))
	writtenScale := make(map[int]struct{}, len(ops))
	for i, op := range ops {
		if _, dup := written[op.Destination]; dup {
			return nil, false
		}
		written[op.Destination] = i
		if op.DestScale != None {
			if _, dup := writtenScale[op.DestScale]; dup {
				return nil, false
			}
			writtenScale[op.DestScale] = struct{}{}
		}
	}
	for i, op := range ops {
		for _, child := range []int{op.ChildA, op.ChildB} {
			if j, isDest := written[child]; isDest && j > i {
				return nil, false
			}
		}
	}

	waveOf := make([]int, len(ops))
	height := 0
	for i, op := range ops {
		w := 0
		for _, child := range []int{op.ChildA, op.ChildB} {
			if j, isDest := written[child]; isDest && j < i && waveOf[j]+1 > w {
				w = waveOf[j] + 1
			}
		}
		waveOf[i] = w
		if w+1 > height {
			height = w + 1
		}
	}
	waves = make([][]int, height)
	for i, w := range waveOf {
		waves[w] = append(waves[w], i)
	}
	return waves, true
}

// WaitForPartials blocks until the given destination buffers are
// computed. Batches complete before UpdatePartials returns, including
// under FlagAsynch, so this only validates the handles; it is the
// synchronization point for future asynchronous backends.
func (inst *Instance) WaitForPartials(destinations []int) error {
	for _, d := range destinations {
		if d < 0 || d >= len(inst.partials) {
			return fmt.Errorf("%w: partials handle %d of %d", ErrBadHandle, d, len(inst.partials))
		}
	}
	return nil
}

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

// Scale buffers come in two roles sharing one handle space: site-local
// buffers hold raw multiplicative per-site factors written by the
// kernels; cumulative buffers hold log-domain sums, which keep precision
// over deep trees where a multiplicative running product would drift.

// AccumulateScaleFactors adds the logs of the site-local factors in
// each listed buffer into the cumulative buffer.
func (inst *Instance) AccumulateScaleFactors(scaleIndices []int, cumulativeIndex int) error {
	cum, err := inst.scaleBuffer(cumulativeIndex)
	if err != nil {
		return err
	}
	for _, idx := range scaleIndices {
		local, err := inst.scaleBuffer(idx)
		if err != nil {
			return err
		}
		for k, s := range local {
			cum[k] += math.Log(s)
		}
	}
	return nil
}

// RemoveScaleFactors subtracts the logs of the site-local factors in
// each listed buffer from the cumulative buffer, undoing a prior
// accumulation.
func (inst *Instance) RemoveScaleFactors(scaleIndices []int, cumulativeIndex int) error {
	cum, err := inst.scaleBuffer(cumulativeIndex)
	if err != nil {
		return err
	}
	for _, idx := range scaleIndices {
		local, err := inst.scaleBuffer(idx)
		if err != nil {
			return err
		}
		for k, s := range local {
			cum[k] -= math.Log(s)
		}
	}
	return nil
}

// ResetScaleFactors zeroes a cumulative buffer.
func (inst *Instance) ResetScaleFactors(cumulativeIndex int) error {
	cum, err := inst.scaleBuffer(cumulativeIndex)
	if err != nil {
		return err
	}
	clear(cum)
	return nil
}

func (inst *Instance) scaleBuffer(index int) ([]float64, error) {
	if index < 0 || index >= len(inst.scales) {
		return nil, fmt.Errorf("%w: scale buffer %d of %d", ErrBadHandle, index, len(inst.scales))
	}
	return inst.scales[index], nil
}

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

// snapshot holds copies of the mutable numeric state: every partial
// buffer that has storage, and every scale buffer. Tip observations are
// caller-written and not part of operation state, so they are excluded.
type snapshot struct {
	partials [][]float64 // index-aligned with Instance.partials; nil where unset
	scales   [][]float64
}

// StoreState takes a consistent snapshot of all partial and scale
// buffers. There is exactly one checkpoint slot; a second StoreState
// discards the previous snapshot. Storage for the snapshot is committed
// on first use and reused afterwards.
func (inst *Instance) StoreState() {
	if inst.snap == nil {
		inst.snap = &snapshot{
			partials: make([][]float64, len(inst.partials)),
			scales:   make([][]float64, len(inst.scales)),
		}
	}
	snap := inst.snap
	for i, buf := range inst.partials {
		if buf == nil {
			snap.partials[i] = nil
			continue
		}
		if snap.partials[i] == nil {
			snap.partials[i] = make([]float64, len(buf))
		}
		copy(snap.partials[i], buf)
	}
	for i, buf := range inst.scales {
		if snap.scales[i] == nil {
			snap.scales[i] = make([]float64, len(buf))
		}
		copy(snap.scales[i], buf)
	}
}

// RestoreState reverts every partial and scale buffer to the last
// snapshot, bit-exact. Calling it without a prior StoreState returns
// ErrBadHandle; a buffer that gained storage after the snapshot is left
// untouched.
func (inst *Instance) RestoreState() error {
	if inst.snap == nil {
		return ErrBadHandle
	}
	for i, saved := range inst.snap.partials {
		if saved == nil || inst.partials[i] == nil {
			continue
		}
		copy(inst.partials[i], saved)
	}
	for i, saved := range inst.snap.scales {
		if saved == nil {
			continue
		}
		copy(inst.scales[i], saved)
	}
	return nil
}

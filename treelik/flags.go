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

import "strings"

// Flags describe backend capabilities and caller preferences at instance
// creation. A backend is selected only if it provides every requirement
// flag; preference flags never exclude a backend and do not change which
// backend is selected.
type Flags uint32

const (
	// FlagCPU requests or advertises a CPU backend.
	FlagCPU Flags = 1 << iota

	// FlagAsynch enables parallel execution of independent operation
	// descriptors within a batch, using a worker pool bounded by the
	// host's processor count.
	FlagAsynch

	// FlagDouble requests or advertises double-precision buffers. All
	// shipped backends are double precision.
	FlagDouble

	// FlagSIMD names a vectorized kernel set. No shipped backend
	// provides it: as a preference it has no effect, and as a
	// requirement no backend is selected (ErrNoBackend).
	FlagSIMD
)

// Has reports whether all bits of q are set in f.
func (f Flags) Has(q Flags) bool { return f&q == q }

// String returns a pipe-separated list of the set flag names.
func (f Flags) String() string {
	var parts []string
	if f.Has(FlagCPU) {
		parts = append(parts, "cpu")
	}
	if f.Has(FlagAsynch) {
		parts = append(parts, "asynch")
	}
	if f.Has(FlagDouble) {
		parts = append(parts, "double")
	}
	if f.Has(FlagSIMD) {
		parts = append(parts, "simd")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

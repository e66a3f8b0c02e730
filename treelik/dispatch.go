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
	"os"
	"strconv"
)

// DispatchLevel identifies the instruction set the kernel factory may
// target on this host.
type DispatchLevel int

const (
	// DispatchScalar indicates the portable pure-Go kernels.
	DispatchScalar DispatchLevel = iota

	// DispatchAVX2 indicates 256-bit x86-64 SIMD is available.
	DispatchAVX2

	// DispatchNEON indicates 128-bit ARM SIMD is available.
	DispatchNEON
)

// String returns a human-readable name for the dispatch level.
func (d DispatchLevel) String() string {
	switch d {
	case DispatchScalar:
		return "scalar"
	case DispatchAVX2:
		return "avx2"
	case DispatchNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// currentLevel is the detected SIMD level for this runtime.
// Set by init() in dispatch_*.go files.
var currentLevel DispatchLevel

// CurrentLevel returns the detected SIMD level, or DispatchScalar when
// TREELIK_NOSIMD is set. The level is reported for diagnostics only:
// backend selection does not consult it, and every registered kernel
// set is scalar.
func CurrentLevel() DispatchLevel {
	if noSimdEnv() {
		return DispatchScalar
	}
	return currentLevel
}

// noSimdEnv reports whether SIMD selection is disabled via the
// TREELIK_NOSIMD environment variable.
func noSimdEnv() bool {
	v, ok := os.LookupEnv("TREELIK_NOSIMD")
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

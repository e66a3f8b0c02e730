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

import "errors"

var (
	// ErrBadHandle indicates an out-of-range or wrong-kind buffer handle.
	ErrBadHandle = errors.New("treelik: bad buffer handle")
	// ErrInvalidValue indicates a negative branch length, a non-finite
	// input, or frequencies/weights not summing to 1 within tolerance.
	ErrInvalidValue = errors.New("treelik: invalid value")
	// ErrDimensionMismatch indicates an array length that disagrees with
	// the instance configuration.
	ErrDimensionMismatch = errors.New("treelik: dimension mismatch")
	// ErrOutOfMemory indicates buffer allocation could not succeed.
	ErrOutOfMemory = errors.New("treelik: out of memory")
	// ErrUnderflowOrNaN indicates a root or edge log-likelihood produced a
	// non-finite value; enable rescaling and retry.
	ErrUnderflowOrNaN = errors.New("treelik: site likelihood underflowed or is not a number")
	// ErrNotImplemented indicates a surface reserved for forward
	// compatibility, such as branch-length derivatives.
	ErrNotImplemented = errors.New("treelik: not implemented")
	// ErrNoBackend indicates no registered kernel set accepted the
	// requested configuration.
	ErrNoBackend = errors.New("treelik: no backend accepts configuration")
)

// Return codes for callers bridging the library across a foreign-function
// boundary. Code maps the error taxonomy onto them; Go callers should use
// errors.Is on the sentinels instead.
const (
	CodeOK                = 0
	CodeBadHandle         = -1
	CodeInvalidValue      = -2
	CodeDimensionMismatch = -3
	CodeOutOfMemory       = -4
	CodeUnderflowOrNaN    = -5
	CodeNotImplemented    = -6
	CodeNoBackend         = -7
	CodeUnknown           = -128
)

// Code translates err into the integer return-code convention above.
// A nil error maps to CodeOK.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrBadHandle):
		return CodeBadHandle
	case errors.Is(err, ErrInvalidValue):
		return CodeInvalidValue
	case errors.Is(err, ErrDimensionMismatch):
		return CodeDimensionMismatch
	case errors.Is(err, ErrOutOfMemory):
		return CodeOutOfMemory
	case errors.Is(err, ErrUnderflowOrNaN):
		return CodeUnderflowOrNaN
	case errors.Is(err, ErrNotImplemented):
		return CodeNotImplemented
	case errors.Is(err, ErrNoBackend):
		return CodeNoBackend
	default:
		return CodeUnknown
	}
}

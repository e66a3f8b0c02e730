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

// kernelSet is the contract between the operation scheduler and a kernel
// implementation. Kernels have no error returns; the scheduler validates
// every handle and dimension before dispatching, so a kernel may assume
// well-formed, correctly sized slices.
//
// Partial buffers are laid out [category][pattern][state] with the state
// index innermost. Transition-matrix blocks are laid out
// [category][row][paddedColumn] where the trailing padded column holds
// 1.0 so a wildcard state (value == StateCount) contributes a unit
// factor through the same lookup path as a resolved state.
type kernelSet interface {
	// name identifies the kernel set ("cpu-general", "cpu-4state").
	name() string

	// capabilities returns the flags the kernel set provides.
	capabilities() Flags

	// statesStates fills dest for a node whose children both carry
	// resolved state vectors.
	statesStates(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64)

	// statesStatesScaled is statesStates with a per-site divide by
	// scale[pattern].
	statesStatesScaled(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64, scale []float64)

	// statesPartials fills dest for one state-vector child and one
	// partials child. The symmetric argument order is canonicalized by
	// the scheduler, which swaps operands so the state child comes
	// first; the product of the two child factors is commutative.
	statesPartials(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64)

	statesPartialsScaled(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64, scale []float64)

	// partialsPartials fills dest for two partials children.
	partialsPartials(dest, partialsA, matA, partialsB, matB []float64)

	partialsPartialsScaled(dest, partialsA, matA, partialsB, matB, scale []float64)

	// integrateRoot collapses a root partial buffer over categories
	// (weighted) and states (frequency-weighted), writing the linear-
	// domain per-site likelihood into siteLik. integration is caller
	// scratch of patternCount*stateCount elements.
	integrateRoot(rootPartials, weights, freqs, integration, siteLik []float64)

	// integrateEdgeStates integrates a parent partial buffer against a
	// resolved-state child across the edge's transition matrix.
	integrateEdgeStates(parentPartials []float64, childStates []int32, matrix, weights, freqs, integration, siteLik []float64)

	// integrateEdgePartials integrates a parent partial buffer against a
	// partials child across the edge's transition matrix.
	integrateEdgePartials(parentPartials, childPartials, matrix, weights, freqs, integration, siteLik []float64)
}

// backendFactory inspects a configuration and returns a kernel set for
// it, or ok=false when the configuration is outside the backend's reach.
type backendFactory func(Config) (kernelSet, bool)

// backendRegistry is the process-wide ordered list of backends. The
// factory walk takes the first entry that accepts the configuration and
// provides every requirement flag. Populated once at package init;
// never mutated afterwards.
var backendRegistry []backendFactory

func init() {
	// Most specific first: the four-state fast path claims stateCount==4
	// before the general kernels see it.
	backendRegistry = []backendFactory{
		newFourStateKernels,
		newGeneralKernels,
	}
}

// selectKernels walks the registry and returns the first kernel set that
// accepts cfg and satisfies cfg.Requirements.
func selectKernels(cfg Config) (kernelSet, error) {
	for _, factory := range backendRegistry {
		ks, ok := factory(cfg)
		if !ok {
			continue
		}
		if !ks.capabilities().Has(cfg.Requirements) {
			continue
		}
		log.WithField("backend", ks.name()).Debug("selected kernel set")
		return ks, nil
	}
	return nil, ErrNoBackend
}

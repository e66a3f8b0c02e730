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

// generalKernels is the portable scalar kernel set for any alphabet
// size. Loop order is category-outer, pattern-inner, state-innermost:
// the per-category matrix is reused across every pattern and stays
// resident in L1, which the reversed order would defeat.
type generalKernels struct {
	states     int
	patterns   int
	categories int
	padded     int // row stride: states + wildcard column
	matrixSize int // states * padded, one category's matrix
}

func newGeneralKernels(cfg Config) (kernelSet, bool) {
	return &generalKernels{
		states:     cfg.StateCount,
		patterns:   cfg.PatternCount,
		categories: cfg.CategoryCount,
		padded:     cfg.paddedStates(),
		matrixSize: cfg.matrixSize(),
	}, true
}

func (g *generalKernels) name() string { return "cpu-general" }

func (g *generalKernels) capabilities() Flags { return FlagCPU | FlagDouble | FlagAsynch }

func (g *generalKernels) statesStates(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64) {
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			sa := int(statesA[k])
			sb := int(statesB[k])
			row := w
			for i := 0; i < g.states; i++ {
				dest[v] = matA[row+sa] * matB[row+sb]
				v++
				row += g.padded
			}
		}
	}
}

func (g *generalKernels) statesStatesScaled(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64, scale []float64) {
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			sa := int(statesA[k])
			sb := int(statesB[k])
			sf := scale[k]
			row := w
			for i := 0; i < g.states; i++ {
				dest[v] = matA[row+sa] * matB[row+sb] / sf
				v++
				row += g.padded
			}
		}
	}
}

func (g *generalKernels) statesPartials(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64) {
	u := 0
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			sa := int(statesA[k])
			row := w
			for i := 0; i < g.states; i++ {
				sum := 0.0
				for j := 0; j < g.states; j++ {
					sum += matB[row+j] * partialsB[v+j]
				}
				dest[u] = matA[row+sa] * sum
				u++
				row += g.padded
			}
			v += g.states
		}
	}
}

func (g *generalKernels) statesPartialsScaled(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64, scale []float64) {
	u := 0
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			sa := int(statesA[k])
			sf := scale[k]
			row := w
			for i := 0; i < g.states; i++ {
				sum := 0.0
				for j := 0; j < g.states; j++ {
					sum += matB[row+j] * partialsB[v+j]
				}
				dest[u] = matA[row+sa] * sum / sf
				u++
				row += g.padded
			}
			v += g.states
		}
	}
}

func (g *generalKernels) partialsPartials(dest, partialsA, matA, partialsB, matB []float64) {
	u := 0
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			row := w
			for i := 0; i < g.states; i++ {
				sumA := 0.0
				sumB := 0.0
				for j := 0; j < g.states; j++ {
					sumA += matA[row+j] * partialsA[v+j]
					sumB += matB[row+j] * partialsB[v+j]
				}
				dest[u] = sumA * sumB
				u++
				row += g.padded
			}
			v += g.states
		}
	}
}

func (g *generalKernels) partialsPartialsScaled(dest, partialsA, matA, partialsB, matB, scale []float64) {
	u := 0
	v := 0
	for l := 0; l < g.categories; l++ {
		w := l * g.matrixSize
		for k := 0; k < g.patterns; k++ {
			sf := scale[k]
			row := w
			for i := 0; i < g.states; i++ {
				sumA := 0.0
				sumB := 0.0
				for j := 0; j < g.states; j++ {
					sumA += matA[row+j] * partialsA[v+j]
					sumB += matB[row+j] * partialsB[v+j]
				}
				dest[u] = sumA * sumB / sf
				u++
				row += g.padded
			}
			v += g.states
		}
	}
}

func (g *generalKernels) integrateRoot(rootPartials, weights, freqs, integration, siteLik []float64) {
	v := 0
	for k := 0; k < g.patterns*g.states; k++ {
		integration[k] = rootPartials[v] * weights[0]
		v++
	}
	for l := 1; l < g.categories; l++ {
		u := 0
		for k := 0; k < g.patterns*g.states; k++ {
			integration[u] += rootPartials[v] * weights[l]
			u++
			v++
		}
	}
	u := 0
	for k := 0; k < g.patterns; k++ {
		sum := 0.0
		for i := 0; i < g.states; i++ {
			sum += freqs[i] * integration[u]
			u++
		}
		siteLik[k] = sum
	}
}

func (g *generalKernels) integrateEdgeStates(parentPartials []float64, childStates []int32, matrix, weights, freqs, integration, siteLik []float64) {
	clear(integration[:g.patterns*g.states])
	v := 0
	for l := 0; l < g.categories; l++ {
		weight := weights[l]
		u := 0
		for k := 0; k < g.patterns; k++ {
			sc := int(childStates[k])
			row := l * g.matrixSize
			for i := 0; i < g.states; i++ {
				integration[u] += matrix[row+sc] * parentPartials[v+i] * weight
				u++
				row += g.padded
			}
			v += g.states
		}
	}
	g.collapseFrequencies(freqs, integration, siteLik)
}

func (g *generalKernels) integrateEdgePartials(parentPartials, childPartials, matrix, weights, freqs, integration, siteLik []float64) {
	clear(integration[:g.patterns*g.states])
	v := 0
	for l := 0; l < g.categories; l++ {
		weight := weights[l]
		w := l * g.matrixSize
		u := 0
		for k := 0; k < g.patterns; k++ {
			row := w
			for i := 0; i < g.states; i++ {
				sum := 0.0
				for j := 0; j < g.states; j++ {
					sum += matrix[row+j] * childPartials[v+j]
				}
				integration[u] += sum * parentPartials[v+i] * weight
				u++
				row += g.padded
			}
			v += g.states
		}
	}
	g.collapseFrequencies(freqs, integration, siteLik)
}

func (g *generalKernels) collapseFrequencies(freqs, integration, siteLik []float64) {
	u := 0
	for k := 0; k < g.patterns; k++ {
		sum := 0.0
		for i := 0; i < g.states; i++ {
			sum += freqs[i] * integration[u]
			u++
		}
		siteLik[k] = sum
	}
}

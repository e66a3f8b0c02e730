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

// offset4 is the padded row stride of a stored four-state transition
// matrix: four states plus the trailing wildcard column.
const offset4 = 5

// fourStateKernels is the unrolled scalar kernel set for nucleotide
// data. Per category it hoists the sixteen live matrix entries into
// locals so the pattern loop touches only partials and destinations;
// the state loop is fully unrolled. The multiply-add order below is
// fixed; reordering it changes low-order bits and breaks per-backend
// determinism.
type fourStateKernels struct {
	patterns   int
	categories int
}

func newFourStateKernels(cfg Config) (kernelSet, bool) {
	if cfg.StateCount != 4 {
		return nil, false
	}
	return &fourStateKernels{
		patterns:   cfg.PatternCount,
		categories: cfg.CategoryCount,
	}, true
}

func (f *fourStateKernels) name() string { return "cpu-4state" }

func (f *fourStateKernels) capabilities() Flags { return FlagCPU | FlagDouble | FlagAsynch }

func (f *fourStateKernels) statesStates(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64) {
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		for k := 0; k < f.patterns; k++ {
			sa := int(statesA[k])
			sb := int(statesB[k])

			dest[v] = matA[w+sa] * matB[w+sb]
			dest[v+1] = matA[w+offset4+sa] * matB[w+offset4+sb]
			dest[v+2] = matA[w+offset4*2+sa] * matB[w+offset4*2+sb]
			dest[v+3] = matA[w+offset4*3+sa] * matB[w+offset4*3+sb]
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) statesStatesScaled(dest []float64, statesA []int32, matA []float64, statesB []int32, matB []float64, scale []float64) {
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		for k := 0; k < f.patterns; k++ {
			sa := int(statesA[k])
			sb := int(statesB[k])
			sf := scale[k]

			dest[v] = matA[w+sa] * matB[w+sb] / sf
			dest[v+1] = matA[w+offset4+sa] * matB[w+offset4+sb] / sf
			dest[v+2] = matA[w+offset4*2+sa] * matB[w+offset4*2+sb] / sf
			dest[v+3] = matA[w+offset4*3+sa] * matB[w+offset4*3+sb] / sf
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) statesPartials(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64) {
	u := 0
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		m00, m01, m02, m03 := matB[w], matB[w+1], matB[w+2], matB[w+3]
		m10, m11, m12, m13 := matB[w+offset4], matB[w+offset4+1], matB[w+offset4+2], matB[w+offset4+3]
		m20, m21, m22, m23 := matB[w+offset4*2], matB[w+offset4*2+1], matB[w+offset4*2+2], matB[w+offset4*2+3]
		m30, m31, m32, m33 := matB[w+offset4*3], matB[w+offset4*3+1], matB[w+offset4*3+2], matB[w+offset4*3+3]

		for k := 0; k < f.patterns; k++ {
			sa := int(statesA[k])

			p0 := partialsB[v]
			p1 := partialsB[v+1]
			p2 := partialsB[v+2]
			p3 := partialsB[v+3]

			sum0 := m00 * p0
			sum1 := m10 * p0
			sum2 := m20 * p0
			sum3 := m30 * p0

			sum0 += m01 * p1
			sum1 += m11 * p1
			sum2 += m21 * p1
			sum3 += m31 * p1

			sum0 += m02 * p2
			sum1 += m12 * p2
			sum2 += m22 * p2
			sum3 += m32 * p2

			sum0 += m03 * p3
			sum1 += m13 * p3
			sum2 += m23 * p3
			sum3 += m33 * p3

			dest[u] = matA[w+sa] * sum0
			dest[u+1] = matA[w+offset4+sa] * sum1
			dest[u+2] = matA[w+offset4*2+sa] * sum2
			dest[u+3] = matA[w+offset4*3+sa] * sum3

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) statesPartialsScaled(dest []float64, statesA []int32, matA []float64, partialsB, matB []float64, scale []float64) {
	u := 0
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		m00, m01, m02, m03 := matB[w], matB[w+1], matB[w+2], matB[w+3]
		m10, m11, m12, m13 := matB[w+offset4], matB[w+offset4+1], matB[w+offset4+2], matB[w+offset4+3]
		m20, m21, m22, m23 := matB[w+offset4*2], matB[w+offset4*2+1], matB[w+offset4*2+2], matB[w+offset4*2+3]
		m30, m31, m32, m33 := matB[w+offset4*3], matB[w+offset4*3+1], matB[w+offset4*3+2], matB[w+offset4*3+3]

		for k := 0; k < f.patterns; k++ {
			sa := int(statesA[k])
			sf := scale[k]

			p0 := partialsB[v]
			p1 := partialsB[v+1]
			p2 := partialsB[v+2]
			p3 := partialsB[v+3]

			sum0 := m00 * p0
			sum1 := m10 * p0
			sum2 := m20 * p0
			sum3 := m30 * p0

			sum0 += m01 * p1
			sum1 += m11 * p1
			sum2 += m21 * p1
			sum3 += m31 * p1

			sum0 += m02 * p2
			sum1 += m12 * p2
			sum2 += m22 * p2
			sum3 += m32 * p2

			sum0 += m03 * p3
			sum1 += m13 * p3
			sum2 += m23 * p3
			sum3 += m33 * p3

			dest[u] = matA[w+sa] * sum0 / sf
			dest[u+1] = matA[w+offset4+sa] * sum1 / sf
			dest[u+2] = matA[w+offset4*2+sa] * sum2 / sf
			dest[u+3] = matA[w+offset4*3+sa] * sum3 / sf

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) partialsPartials(dest, partialsA, matA, partialsB, matB []float64) {
	u := 0
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		a00, a01, a02, a03 := matA[w], matA[w+1], matA[w+2], matA[w+3]
		a10, a11, a12, a13 := matA[w+offset4], matA[w+offset4+1], matA[w+offset4+2], matA[w+offset4+3]
		a20, a21, a22, a23 := matA[w+offset4*2], matA[w+offset4*2+1], matA[w+offset4*2+2], matA[w+offset4*2+3]
		a30, a31, a32, a33 := matA[w+offset4*3], matA[w+offset4*3+1], matA[w+offset4*3+2], matA[w+offset4*3+3]

		b00, b01, b02, b03 := matB[w], matB[w+1], matB[w+2], matB[w+3]
		b10, b11, b12, b13 := matB[w+offset4], matB[w+offset4+1], matB[w+offset4+2], matB[w+offset4+3]
		b20, b21, b22, b23 := matB[w+offset4*2], matB[w+offset4*2+1], matB[w+offset4*2+2], matB[w+offset4*2+3]
		b30, b31, b32, b33 := matB[w+offset4*3], matB[w+offset4*3+1], matB[w+offset4*3+2], matB[w+offset4*3+3]

		for k := 0; k < f.patterns; k++ {
			pa0 := partialsA[v]
			pa1 := partialsA[v+1]
			pa2 := partialsA[v+2]
			pa3 := partialsA[v+3]

			pb0 := partialsB[v]
			pb1 := partialsB[v+1]
			pb2 := partialsB[v+2]
			pb3 := partialsB[v+3]

			sumA0 := a00 * pa0
			sumA1 := a10 * pa0
			sumA2 := a20 * pa0
			sumA3 := a30 * pa0

			sumA0 += a01 * pa1
			sumA1 += a11 * pa1
			sumA2 += a21 * pa1
			sumA3 += a31 * pa1

			sumA0 += a02 * pa2
			sumA1 += a12 * pa2
			sumA2 += a22 * pa2
			sumA3 += a32 * pa2

			sumA0 += a03 * pa3
			sumA1 += a13 * pa3
			sumA2 += a23 * pa3
			sumA3 += a33 * pa3

			sumB0 := b00 * pb0
			sumB1 := b10 * pb0
			sumB2 := b20 * pb0
			sumB3 := b30 * pb0

			sumB0 += b01 * pb1
			sumB1 += b11 * pb1
			sumB2 += b21 * pb1
			sumB3 += b31 * pb1

			sumB0 += b02 * pb2
			sumB1 += b12 * pb2
			sumB2 += b22 * pb2
			sumB3 += b32 * pb2

			sumB0 += b03 * pb3
			sumB1 += b13 * pb3
			sumB2 += b23 * pb3
			sumB3 += b33 * pb3

			dest[u] = sumA0 * sumB0
			dest[u+1] = sumA1 * sumB1
			dest[u+2] = sumA2 * sumB2
			dest[u+3] = sumA3 * sumB3

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) partialsPartialsScaled(dest, partialsA, matA, partialsB, matB, scale []float64) {
	u := 0
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		a00, a01, a02, a03 := matA[w], matA[w+1], matA[w+2], matA[w+3]
		a10, a11, a12, a13 := matA[w+offset4], matA[w+offset4+1], matA[w+offset4+2], matA[w+offset4+3]
		a20, a21, a22, a23 := matA[w+offset4*2], matA[w+offset4*2+1], matA[w+offset4*2+2], matA[w+offset4*2+3]
		a30, a31, a32, a33 := matA[w+offset4*3], matA[w+offset4*3+1], matA[w+offset4*3+2], matA[w+offset4*3+3]

		b00, b01, b02, b03 := matB[w], matB[w+1], matB[w+2], matB[w+3]
		b10, b11, b12, b13 := matB[w+offset4], matB[w+offset4+1], matB[w+offset4+2], matB[w+offset4+3]
		b20, b21, b22, b23 := matB[w+offset4*2], matB[w+offset4*2+1], matB[w+offset4*2+2], matB[w+offset4*2+3]
		b30, b31, b32, b33 := matB[w+offset4*3], matB[w+offset4*3+1], matB[w+offset4*3+2], matB[w+offset4*3+3]

		for k := 0; k < f.patterns; k++ {
			sf := scale[k]

			pa0 := partialsA[v]
			pa1 := partialsA[v+1]
			pa2 := partialsA[v+2]
			pa3 := partialsA[v+3]

			pb0 := partialsB[v]
			pb1 := partialsB[v+1]
			pb2 := partialsB[v+2]
			pb3 := partialsB[v+3]

			sumA0 := a00 * pa0
			sumA1 := a10 * pa0
			sumA2 := a20 * pa0
			sumA3 := a30 * pa0

			sumA0 += a01 * pa1
			sumA1 += a11 * pa1
			sumA2 += a21 * pa1
			sumA3 += a31 * pa1

			sumA0 += a02 * pa2
			sumA1 += a12 * pa2
			sumA2 += a22 * pa2
			sumA3 += a32 * pa2

			sumA0 += a03 * pa3
			sumA1 += a13 * pa3
			sumA2 += a23 * pa3
			sumA3 += a33 * pa3

			sumB0 := b00 * pb0
			sumB1 := b10 * pb0
			sumB2 := b20 * pb0
			sumB3 := b30 * pb0

			sumB0 += b01 * pb1
			sumB1 += b11 * pb1
			sumB2 += b21 * pb1
			sumB3 += b31 * pb1

			sumB0 += b02 * pb2
			sumB1 += b12 * pb2
			sumB2 += b22 * pb2
			sumB3 += b32 * pb2

			sumB0 += b03 * pb3
			sumB1 += b13 * pb3
			sumB2 += b23 * pb3
			sumB3 += b33 * pb3

			dest[u] = sumA0 * sumB0 / sf
			dest[u+1] = sumA1 * sumB1 / sf
			dest[u+2] = sumA2 * sumB2 / sf
			dest[u+3] = sumA3 * sumB3 / sf

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
}

func (f *fourStateKernels) integrateRoot(rootPartials, weights, freqs, integration, siteLik []float64) {
	// First category assigns, the rest accumulate; avoids a clear pass.
	v := 0
	for k := 0; k < f.patterns; k++ {
		integration[v] = rootPartials[v] * weights[0]
		integration[v+1] = rootPartials[v+1] * weights[0]
		integration[v+2] = rootPartials[v+2] * weights[0]
		integration[v+3] = rootPartials[v+3] * weights[0]
		v += 4
	}
	for l := 1; l < f.categories; l++ {
		u := 0
		for k := 0; k < f.patterns; k++ {
			integration[u] += rootPartials[v] * weights[l]
			integration[u+1] += rootPartials[v+1] * weights[l]
			integration[u+2] += rootPartials[v+2] * weights[l]
			integration[u+3] += rootPartials[v+3] * weights[l]
			u += 4
			v += 4
		}
	}

	freq0, freq1, freq2, freq3 := freqs[0], freqs[1], freqs[2], freqs[3]
	u := 0
	for k := 0; k < f.patterns; k++ {
		siteLik[k] = freq0*integration[u] +
			freq1*integration[u+1] +
			freq2*integration[u+2] +
			freq3*integration[u+3]
		u += 4
	}
}

func (f *fourStateKernels) integrateEdgeStates(parentPartials []float64, childStates []int32, matrix, weights, freqs, integration, siteLik []float64) {
	clear(integration[:f.patterns*4])
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		weight := weights[l]
		u := 0
		for k := 0; k < f.patterns; k++ {
			sc := int(childStates[k])

			integration[u] += matrix[w+sc] * parentPartials[v] * weight
			integration[u+1] += matrix[w+offset4+sc] * parentPartials[v+1] * weight
			integration[u+2] += matrix[w+offset4*2+sc] * parentPartials[v+2] * weight
			integration[u+3] += matrix[w+offset4*3+sc] * parentPartials[v+3] * weight

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
	f.collapseFrequencies(freqs, integration, siteLik)
}

func (f *fourStateKernels) integrateEdgePartials(parentPartials, childPartials, matrix, weights, freqs, integration, siteLik []float64) {
	clear(integration[:f.patterns*4])
	v := 0
	w := 0
	for l := 0; l < f.categories; l++ {
		weight := weights[l]

		m00, m01, m02, m03 := matrix[w], matrix[w+1], matrix[w+2], matrix[w+3]
		m10, m11, m12, m13 := matrix[w+offset4], matrix[w+offset4+1], matrix[w+offset4+2], matrix[w+offset4+3]
		m20, m21, m22, m23 := matrix[w+offset4*2], matrix[w+offset4*2+1], matrix[w+offset4*2+2], matrix[w+offset4*2+3]
		m30, m31, m32, m33 := matrix[w+offset4*3], matrix[w+offset4*3+1], matrix[w+offset4*3+2], matrix[w+offset4*3+3]

		u := 0
		for k := 0; k < f.patterns; k++ {
			p0 := childPartials[v]
			p1 := childPartials[v+1]
			p2 := childPartials[v+2]
			p3 := childPartials[v+3]

			sum0 := m00 * p0
			sum1 := m10 * p0
			sum2 := m20 * p0
			sum3 := m30 * p0

			sum0 += m01 * p1
			sum1 += m11 * p1
			sum2 += m21 * p1
			sum3 += m31 * p1

			sum0 += m02 * p2
			sum1 += m12 * p2
			sum2 += m22 * p2
			sum3 += m32 * p2

			sum0 += m03 * p3
			sum1 += m13 * p3
			sum2 += m23 * p3
			sum3 += m33 * p3

			integration[u] += sum0 * parentPartials[v] * weight
			integration[u+1] += sum1 * parentPartials[v+1] * weight
			integration[u+2] += sum2 * parentPartials[v+2] * weight
			integration[u+3] += sum3 * parentPartials[v+3] * weight

			u += 4
			v += 4
		}
		w += offset4 * 4
	}
	f.collapseFrequencies(freqs, integration, siteLik)
}

func (f *fourStateKernels) collapseFrequencies(freqs, integration, siteLik []float64) {
	freq0, freq1, freq2, freq3 := freqs[0], freqs[1], freqs[2], freqs[3]
	u := 0
	for k := 0; k < f.patterns; k++ {
		siteLik[k] = freq0*integration[u] +
			freq1*integration[u+1] +
			freq2*integration[u+2] +
			freq3*integration[u+3]
		u += 4
	}
}

// Command treelik-bench measures likelihood-evaluation throughput on a
// synthetic caterpillar tree.
//
// Usage:
//
//	treelik-bench -tips 128 -patterns 1000 -categories 4 -reps 100
//
// Each repetition refreshes every transition matrix, re-propagates all
// partials with dynamic rescaling and integrates the root, the inner
// loop of branch-length optimization and tree search.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/ajroetker/go-treelik/treelik"
)

var (
	tips       = flag.Int("tips", 128, "Number of tips in the caterpillar tree")
	patterns   = flag.Int("patterns", 1000, "Number of site patterns")
	categories = flag.Int("categories", 4, "Number of rate categories")
	reps       = flag.Int("reps", 100, "Number of full evaluations")
	asynch     = flag.Bool("asynch", false, "Enable the parallel operation scheduler")
	seed       = flag.Int64("seed", 1, "Random seed for tip data and branch lengths")
)

func main() {
	flag.Parse()
	if *tips < 2 || *patterns < 1 || *categories < 1 || *reps < 1 {
		fmt.Fprintln(os.Stderr, "Error: tips, patterns, categories and reps must be positive (tips >= 2)")
		flag.Usage()
		os.Exit(1)
	}

	var prefs treelik.Flags
	if *asynch {
		prefs = treelik.FlagAsynch
	}

	internal := *tips - 1
	edges := 2*(*tips) - 2
	root := *tips + internal - 1
	inst, err := treelik.NewInstance(treelik.Config{
		TipCount:            *tips,
		PartialsBufferCount: internal,
		CompactBufferCount:  *tips,
		StateCount:          4,
		PatternCount:        *patterns,
		EigenBufferCount:    1,
		MatrixBufferCount:   edges,
		CategoryCount:       *categories,
		ScaleBufferCount:    internal + 1,
		Preferences:         prefs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer inst.Finalize()
	fmt.Printf("backend=%s simd=%s tips=%d patterns=%d categories=%d\n",
		inst.BackendName(), treelik.CurrentLevel(), *tips, *patterns, *categories)

	rng := rand.New(rand.NewSource(*seed))
	setup(inst, rng)

	matrixIndices := make([]int, edges)
	branchLengths := make([]float64, edges)
	for i := range matrixIndices {
		matrixIndices[i] = i
		branchLengths[i] = 0.01 + 0.3*rng.Float64()
	}

	ops := caterpillarOps(*tips)
	cumulative := internal
	out := make([]float64, *patterns)

	start := time.Now()
	for r := 0; r < *reps; r++ {
		must(inst.UpdateTransitionMatrices(0, matrixIndices, nil, nil, branchLengths))
		must(inst.ResetScaleFactors(cumulative))
		must(inst.UpdatePartials(ops, cumulative, treelik.RescaleDynamic))
		must(inst.CalculateRootLogLikelihoods(root, cumulative, out))
	}
	elapsed := time.Since(start)

	total := 0.0
	for _, lnL := range out {
		total += lnL
	}
	perEval := elapsed / time.Duration(*reps)
	fmt.Printf("log-likelihood=%.6f\n", total)
	fmt.Printf("%d evaluations in %v (%v per evaluation, %.1f patterns/us)\n",
		*reps, elapsed, perEval, float64(*patterns)/float64(perEval.Microseconds()))
}

func setup(inst *treelik.Instance, rng *rand.Rand) {
	u := []float64{
		1, 1, 1, 1,
		1, -1, 1, -1,
		1, 1, -1, -1,
		1, -1, -1, 1,
	}
	uInv := make([]float64, 16)
	for i, x := range u {
		uInv[i] = x / 4
	}
	must(inst.SetEigenDecomposition(0, u, uInv, []float64{0, -4.0 / 3, -4.0 / 3, -4.0 / 3}))

	rates := make([]float64, *categories)
	weights := make([]float64, *categories)
	for l := range rates {
		rates[l] = 0.5 + float64(l)*0.5
		weights[l] = 1 / float64(*categories)
	}
	must(inst.SetCategoryRates(rates))
	must(inst.SetCategoryWeights(weights))
	must(inst.SetStateFrequencies([]float64{0.25, 0.25, 0.25, 0.25}))

	states := make([]int32, *patterns)
	for tip := 0; tip < *tips; tip++ {
		for k := range states {
			states[k] = int32(rng.Intn(4))
		}
		must(inst.SetTipStates(tip, states))
	}
}

// caterpillarOps lists the post-order joins of a caterpillar: node
// tips+i combines the previous internal node (or tip 0) with tip i+1.
func caterpillarOps(tips int) []treelik.Operation {
	ops := make([]treelik.Operation, tips-1)
	for i := range ops {
		childA := tips + i - 1
		if i == 0 {
			childA = 0
		}
		ops[i] = treelik.Operation{
			Destination: tips + i,
			DestScale:   i,
			SourceScale: treelik.None,
			ChildA:      childA, ChildAMatrix: 2 * i,
			ChildB: i + 1, ChildBMatrix: 2*i + 1,
		}
	}
	return ops
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

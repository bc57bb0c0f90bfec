package evo

import (
	"math"
	"math/big"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/exp/constraints"

	"diophant/internal/model"
)

// minChunkPerWorker keeps tiny populations off the worker pool.
const minChunkPerWorker = 64

// MaxDeviation is reported for residuals whose magnitude does not fit in int64.
const MaxDeviation = math.MaxInt64

// Fitness is the absolute residual |y - (a*x1 + b*x2 + c*x3 + d*x4)|,
// saturated at MaxDeviation. Zero is returned only for an exact solution.
func Fitness(coeffs model.Coefficients, ch model.Chromosome) int64 {
	residual := coeffs.Y
	for i, w := range coeffs.Weights() {
		term, ok := mulInt64(w, ch[i])
		if !ok {
			return wideFitness(coeffs, ch)
		}
		if residual, ok = subInt64(residual, term); !ok {
			return wideFitness(coeffs, ch)
		}
	}
	if residual == math.MinInt64 {
		return MaxDeviation
	}
	return abs(residual)
}

// wideFitness recomputes the residual without overflow once the int64 path
// would wrap.
func wideFitness(coeffs model.Coefficients, ch model.Chromosome) int64 {
	residual := big.NewInt(coeffs.Y)
	var term big.Int
	for i, w := range coeffs.Weights() {
		term.Mul(big.NewInt(w), big.NewInt(ch[i]))
		residual.Sub(residual, &term)
	}
	residual.Abs(residual)
	if !residual.IsInt64() {
		return MaxDeviation
	}
	return residual.Int64()
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

func subInt64(a, b int64) (int64, bool) {
	r := a - b
	if (b > 0 && r > a) || (b < 0 && r < a) {
		return 0, false
	}
	return r, true
}

// EvaluatePopulation scores every chromosome. With workers > 1 the population
// is split into contiguous chunks scored concurrently; output order always
// matches input order.
func EvaluatePopulation(coeffs model.Coefficients, population []model.Chromosome, workers int) []int64 {
	fitness := make([]int64, len(population))
	if workers <= 1 || len(population) < workers*minChunkPerWorker {
		for i, ch := range population {
			fitness[i] = Fitness(coeffs, ch)
		}
		return fitness
	}

	chunk := (len(population) + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for start := 0; start < len(population); start += chunk {
		end := min(start+chunk, len(population))
		p.Go(func() {
			for i := start; i < end; i++ {
				fitness[i] = Fitness(coeffs, population[i])
			}
		})
	}
	p.Wait()
	return fitness
}

// ExactIndex returns the first chromosome with zero fitness, or -1.
func ExactIndex(fitness []int64) int {
	for i, f := range fitness {
		if f == 0 {
			return i
		}
	}
	return -1
}

// BestIndex returns the first index holding the minimum fitness, or -1 for an
// empty vector.
func BestIndex(fitness []int64) int {
	if len(fitness) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(fitness); i++ {
		if fitness[i] < fitness[best] {
			best = i
		}
	}
	return best
}

func abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

package evo

import (
	"fmt"
	"math/rand"

	"diophant/internal/model"
)

// GeneBound returns the inclusive upper bound for initial genes: floor(y/2),
// collapsed to 1 when the target is too small to give a wider range.
func GeneBound(y int64) int64 {
	bound := y / 2
	if bound < 1 {
		return 1
	}
	return bound
}

// InitPopulation draws n chromosomes with every gene uniform in [1, GeneBound(y)].
func InitPopulation(rng *rand.Rand, y int64, n int) ([]model.Chromosome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if n <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	bound := GeneBound(y)
	population := make([]model.Chromosome, n)
	for i := range population {
		for g := range population[i] {
			population[i][g] = 1 + rng.Int63n(bound)
		}
	}
	return population, nil
}

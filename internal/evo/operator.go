package evo

import (
	"math/rand"

	"diophant/internal/model"
)

// Mutator perturbs an offspring population in place and reports how many
// chromosomes it changed.
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, population []model.Chromosome) int
}

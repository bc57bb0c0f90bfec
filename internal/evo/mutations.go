package evo

import (
	"math/rand"

	"diophant/internal/model"
)

const DefaultMutationRate = 0.01

var defaultMutationDeltas = []int64{-2, -1, 1, 2}

// BoundedDeltaMutation nudges one gene of a chromosome by a small delta.
//
// Each chromosome mutates independently with probability Rate. The gene is
// chosen uniformly and the delta uniformly from Deltas. When Clamp is set a
// mutated gene never drops below Floor; otherwise genes may drift to zero or
// below.
type BoundedDeltaMutation struct {
	Rate   float64
	Deltas []int64
	Clamp  bool
	Floor  int64
}

// NewBoundedDeltaMutation returns the default operator: 1% rate, deltas
// {-2,-1,+1,+2}, genes clamped to the positive domain.
func NewBoundedDeltaMutation() *BoundedDeltaMutation {
	return &BoundedDeltaMutation{
		Rate:   DefaultMutationRate,
		Deltas: append([]int64(nil), defaultMutationDeltas...),
		Clamp:  true,
		Floor:  1,
	}
}

func (m *BoundedDeltaMutation) Name() string {
	return "bounded_delta"
}

func (m *BoundedDeltaMutation) Mutate(rng *rand.Rand, population []model.Chromosome) int {
	deltas := m.Deltas
	if len(deltas) == 0 {
		deltas = defaultMutationDeltas
	}
	mutated := 0
	for i := range population {
		if rng.Float64() >= m.Rate {
			continue
		}
		pos := rng.Intn(model.GeneCount)
		gene := population[i][pos] + deltas[rng.Intn(len(deltas))]
		if m.Clamp && gene < m.Floor {
			gene = m.Floor
		}
		population[i][pos] = gene
		mutated++
	}
	return mutated
}

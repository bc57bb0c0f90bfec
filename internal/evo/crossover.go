package evo

import (
	"fmt"
	"math/rand"

	"diophant/internal/model"
)

const (
	minCrossoverGenes = 1
	maxCrossoverGenes = model.GeneCount - 1
)

// Couple is an unordered parent pair. Both sides may be the same chromosome.
type Couple struct {
	First  model.Chromosome
	Second model.Chromosome
}

// PairCouples draws count couples uniformly with replacement from the parent pool.
func PairCouples(rng *rand.Rand, parents []model.Chromosome, count int) ([]Couple, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("parent pool is empty")
	}
	couples := make([]Couple, count)
	for i := range couples {
		couples[i] = Couple{
			First:  parents[rng.Intn(len(parents))],
			Second: parents[rng.Intn(len(parents))],
		}
	}
	return couples, nil
}

// CrossoverPositions picks between one and three distinct gene positions, so
// at least one gene is exchanged and at least one is kept.
func CrossoverPositions(rng *rand.Rand) []int {
	k := minCrossoverGenes + rng.Intn(maxCrossoverGenes-minCrossoverGenes+1)
	return rng.Perm(model.GeneCount)[:k]
}

// CrossoverCouple swaps exactly the given positions between the two parents.
func CrossoverCouple(couple Couple, positions []int) (model.Chromosome, model.Chromosome) {
	first, second := couple.First, couple.Second
	for _, pos := range positions {
		first[pos], second[pos] = couple.Second[pos], couple.First[pos]
	}
	return first, second
}

// NextGeneration pairs the parent pool into couples and returns one child per
// parent slot. An odd pool drops the surplus child of the last couple.
func NextGeneration(rng *rand.Rand, parents []model.Chromosome) ([]model.Chromosome, error) {
	couples, err := PairCouples(rng, parents, (len(parents)+1)/2)
	if err != nil {
		return nil, err
	}
	offspring := make([]model.Chromosome, 0, len(couples)*2)
	for _, couple := range couples {
		first, second := CrossoverCouple(couple, CrossoverPositions(rng))
		offspring = append(offspring, first, second)
	}
	return offspring[:len(parents)], nil
}

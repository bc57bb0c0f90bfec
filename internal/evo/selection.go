package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"diophant/internal/model"
)

// ErrZeroFitness is returned when inverse weighting would divide by zero.
// The search loop never reaches selection with an exact solution present.
var ErrZeroFitness = errors.New("inverse fitness weighting requires fitness > 0")

// Selector draws a parent pool from a scored population.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []model.Chromosome, fitness []int64) ([]model.Chromosome, error)
}

// RouletteSelector is fitness-proportionate selection over inverse deviation.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) Select(rng *rand.Rand, population []model.Chromosome, fitness []int64) ([]model.Chromosome, error) {
	return SelectParents(rng, population, fitness)
}

// Probabilities converts deviations into selection probabilities
// p_i = (1/f_i) / sum(1/f_j).
func Probabilities(fitness []int64) ([]float64, error) {
	if len(fitness) == 0 {
		return nil, fmt.Errorf("fitness vector is empty")
	}
	weights := make([]float64, len(fitness))
	var sum float64
	for i, f := range fitness {
		if f <= 0 {
			return nil, fmt.Errorf("index %d: %w", i, ErrZeroFitness)
		}
		weights[i] = 1 / float64(f)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// Cumulative returns the exclusive prefix sum of probabilities: c[0] = 0 and
// c[i] = c[i-1] + p[i-1]. The implicit right bound of the last slot is 1.
func Cumulative(probabilities []float64) []float64 {
	out := make([]float64, len(probabilities))
	var sum float64
	for i, p := range probabilities {
		out[i] = sum
		sum += p
	}
	return out
}

// SearchIndex returns the first slot whose right boundary reaches u, treating
// the right boundary of the last slot as 1. A draw landing exactly on a
// boundary goes to the lower slot, so zero-width slots are never chosen.
func SearchIndex(cumulative []float64, u float64) int {
	lo, hi := 0, len(cumulative)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cumulative[mid+1] >= u {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// SelectParents performs len(population) independent roulette draws.
func SelectParents(rng *rand.Rand, population []model.Chromosome, fitness []int64) ([]model.Chromosome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(population) != len(fitness) {
		return nil, fmt.Errorf("population/fitness length mismatch: %d != %d", len(population), len(fitness))
	}
	probabilities, err := Probabilities(fitness)
	if err != nil {
		return nil, err
	}
	cumulative := Cumulative(probabilities)

	parents := make([]model.Chromosome, len(population))
	for i := range parents {
		parents[i] = population[SearchIndex(cumulative, rng.Float64())]
	}
	return parents, nil
}

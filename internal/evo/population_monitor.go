package evo

import (
	"fmt"
	"math/rand"

	"diophant/internal/model"
)

const (
	DefaultPopulationSize = 100
	DefaultMaxGenerations = 1000
)

type RunResult struct {
	Status           model.SearchStatus
	Best             model.Chromosome
	Deviation        int64
	Generations      int
	Mutations        int
	BestByGeneration []int64
	Diagnostics      []model.GenerationDiagnostics
	FinalPopulation  []model.Chromosome
	FinalFitness     []int64
}

type MonitorConfig struct {
	Coefficients   model.Coefficients
	PopulationSize int
	MaxGenerations int
	Workers        int
	Seed           int64
	Selector       Selector
	Mutation       Mutator
	// OnGeneration, when set, receives diagnostics for every scored generation.
	OnGeneration func(model.GenerationDiagnostics)
}

// PopulationMonitor drives the generation loop for one search. It is not safe
// for concurrent use; build one per search.
type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if err := cfg.Coefficients.Validate(); err != nil {
		return nil, err
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.MaxGenerations < 0 {
		return nil, fmt.Errorf("max generations must be >= 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = RouletteSelector{}
	}
	if cfg.Mutation == nil {
		cfg.Mutation = NewBoundedDeltaMutation()
	}
	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run searches until a chromosome with zero deviation appears or the
// generation budget is spent. It always returns a candidate.
func (m *PopulationMonitor) Run() (RunResult, error) {
	population, err := InitPopulation(m.rng, m.cfg.Coefficients.Y, m.cfg.PopulationSize)
	if err != nil {
		return RunResult{}, err
	}
	fitness := EvaluatePopulation(m.cfg.Coefficients, population, m.cfg.Workers)

	result := RunResult{
		BestByGeneration: make([]int64, 0, m.cfg.MaxGenerations+1),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, m.cfg.MaxGenerations+1),
	}
	for generation := 0; ; generation++ {
		diag := summarizeGeneration(generation, population, fitness)
		result.Diagnostics = append(result.Diagnostics, diag)
		result.BestByGeneration = append(result.BestByGeneration, diag.BestDeviation)
		if m.cfg.OnGeneration != nil {
			m.cfg.OnGeneration(diag)
		}

		// The exact-match check must precede selection: inverse weighting
		// is undefined for zero fitness.
		if idx := ExactIndex(fitness); idx >= 0 {
			result.Status = model.StatusExactSolved
			result.Best = population[idx]
			result.Deviation = 0
			result.Generations = generation
			break
		}
		if generation >= m.cfg.MaxGenerations {
			best := BestIndex(fitness)
			result.Status = model.StatusBudgetExhausted
			result.Best = population[best]
			result.Deviation = fitness[best]
			result.Generations = generation
			break
		}

		parents, err := m.cfg.Selector.Select(m.rng, population, fitness)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d selection: %w", generation, err)
		}
		offspring, err := NextGeneration(m.rng, parents)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d crossover: %w", generation, err)
		}
		result.Mutations += m.cfg.Mutation.Mutate(m.rng, offspring)

		population = offspring
		fitness = EvaluatePopulation(m.cfg.Coefficients, population, m.cfg.Workers)
	}

	result.FinalPopulation = population
	result.FinalFitness = fitness
	return result, nil
}

func summarizeGeneration(generation int, population []model.Chromosome, fitness []int64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{Generation: generation}
	if len(fitness) == 0 {
		return diag
	}
	diag.BestDeviation = fitness[0]
	diag.WorstDeviation = fitness[0]
	var sum float64
	for _, f := range fitness {
		if f < diag.BestDeviation {
			diag.BestDeviation = f
		}
		if f > diag.WorstDeviation {
			diag.WorstDeviation = f
		}
		sum += float64(f)
	}
	diag.MeanDeviation = sum / float64(len(fitness))

	distinct := make(map[model.Chromosome]struct{}, len(population))
	for _, ch := range population {
		distinct[ch] = struct{}{}
	}
	diag.DistinctGenotypes = len(distinct)
	return diag
}

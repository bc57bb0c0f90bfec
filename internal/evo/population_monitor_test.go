package evo

import (
	"reflect"
	"testing"

	"diophant/internal/model"
)

func TestPopulationMonitorFindsExactSolution(t *testing.T) {
	coeffs := model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: 4}
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Coefficients:   coeffs,
		PopulationSize: DefaultPopulationSize,
		MaxGenerations: DefaultMaxGenerations,
		Seed:           42,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != model.StatusExactSolved {
		t.Fatalf("expected exact solution, got %s deviation=%d", result.Status, result.Deviation)
	}
	if result.Deviation != 0 {
		t.Fatalf("expected deviation 0, got %d", result.Deviation)
	}
	if result.Best != (model.Chromosome{1, 1, 1, 1}) {
		t.Fatalf("expected (1,1,1,1), got %v", result.Best)
	}
	if result.Generations > DefaultMaxGenerations {
		t.Fatalf("generation budget exceeded: %d", result.Generations)
	}
}

func TestPopulationMonitorReportsClosestWhenUnsolvable(t *testing.T) {
	coeffs := model.Coefficients{A: 2, B: 3, C: 5, D: 7, Y: 1}
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Coefficients:   coeffs,
		PopulationSize: 40,
		MaxGenerations: 200,
		Seed:           3,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != model.StatusBudgetExhausted {
		t.Fatalf("expected budget exhaustion, got %s", result.Status)
	}
	if result.Deviation == 0 {
		t.Fatal("unsolvable equation must never report deviation 0")
	}
	if result.Generations != 200 {
		t.Fatalf("expected 200 generations, got %d", result.Generations)
	}
	if got := Fitness(coeffs, result.Best); got != result.Deviation {
		t.Fatalf("reported deviation %d does not match chromosome fitness %d", result.Deviation, got)
	}
	for i, f := range result.FinalFitness {
		if f < result.Deviation {
			t.Fatalf("final chromosome %d has lower deviation %d than reported %d", i, f, result.Deviation)
		}
	}
	if len(result.BestByGeneration) != 201 || len(result.Diagnostics) != 201 {
		t.Fatalf("expected one diagnostics entry per scored generation, got %d/%d", len(result.BestByGeneration), len(result.Diagnostics))
	}
}

func TestPopulationMonitorExactResultSatisfiesEquation(t *testing.T) {
	cases := []model.Coefficients{
		{A: 1, B: 2, C: 3, D: 4, Y: 30},
		{A: 3, B: 5, C: 2, D: 1, Y: 40},
		{A: 1, B: 1, C: 1, D: 1, Y: 100},
	}
	for _, coeffs := range cases {
		monitor, err := NewPopulationMonitor(MonitorConfig{Coefficients: coeffs, PopulationSize: 100, MaxGenerations: 1000, Seed: 8})
		if err != nil {
			t.Fatalf("new monitor: %v", err)
		}
		result, err := monitor.Run()
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if result.Deviation == 0 {
			sum := coeffs.A*result.Best[0] + coeffs.B*result.Best[1] + coeffs.C*result.Best[2] + coeffs.D*result.Best[3]
			if sum != coeffs.Y {
				t.Fatalf("exact result %v does not satisfy %+v", result.Best, coeffs)
			}
		}
		if Fitness(coeffs, result.Best) != result.Deviation {
			t.Fatalf("deviation mismatch for %+v", coeffs)
		}
	}
}

func TestPopulationMonitorSeedIsReproducible(t *testing.T) {
	cfg := MonitorConfig{
		Coefficients:   model.Coefficients{A: 7, B: 11, C: 13, D: 17, Y: 997},
		PopulationSize: 30,
		MaxGenerations: 50,
		Seed:           99,
	}
	run := func() RunResult {
		monitor, err := NewPopulationMonitor(cfg)
		if err != nil {
			t.Fatalf("new monitor: %v", err)
		}
		result, err := monitor.Run()
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}
	first, second := run(), run()
	if first.Best != second.Best || first.Deviation != second.Deviation || first.Generations != second.Generations {
		t.Fatalf("seeded runs diverged: %+v vs %+v", first.Best, second.Best)
	}
	if !reflect.DeepEqual(first.BestByGeneration, second.BestByGeneration) {
		t.Fatal("seeded runs produced different histories")
	}
}

func TestPopulationMonitorZeroBudgetScoresInitialPopulation(t *testing.T) {
	var observed []model.GenerationDiagnostics
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Coefficients:   model.Coefficients{A: 2, B: 3, C: 5, D: 7, Y: 1},
		PopulationSize: 10,
		MaxGenerations: 0,
		Seed:           1,
		OnGeneration: func(d model.GenerationDiagnostics) {
			observed = append(observed, d)
		},
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Generations != 0 || result.Status != model.StatusBudgetExhausted {
		t.Fatalf("unexpected result: %+v", result)
	}
	// y=1 collapses every gene to 1, so 2+3+5+7-1 = 16.
	if result.Deviation != 16 {
		t.Fatalf("expected deviation 16, got %d", result.Deviation)
	}
	if len(observed) != 1 || observed[0].DistinctGenotypes != 1 {
		t.Fatalf("unexpected observed diagnostics: %+v", observed)
	}
}

func TestNewPopulationMonitorValidatesConfig(t *testing.T) {
	valid := model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: 4}
	cases := []struct {
		name string
		cfg  MonitorConfig
	}{
		{name: "non-positive coefficient", cfg: MonitorConfig{Coefficients: model.Coefficients{A: 0, B: 1, C: 1, D: 1, Y: 4}, PopulationSize: 4, MaxGenerations: 1}},
		{name: "non-positive target", cfg: MonitorConfig{Coefficients: model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: -4}, PopulationSize: 4, MaxGenerations: 1}},
		{name: "population", cfg: MonitorConfig{Coefficients: valid, PopulationSize: 0, MaxGenerations: 1}},
		{name: "generations", cfg: MonitorConfig{Coefficients: valid, PopulationSize: 4, MaxGenerations: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPopulationMonitor(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

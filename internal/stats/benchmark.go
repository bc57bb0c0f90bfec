package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"diophant/internal/model"
)

const benchmarkExperimentsDir = "experiments"

// BenchmarkRun is one seeded search inside a benchmark experiment.
type BenchmarkRun struct {
	RunID       string             `json:"run_id"`
	Seed        int64              `json:"seed"`
	Status      model.SearchStatus `json:"status"`
	Generations int                `json:"generations"`
	Deviation   int64              `json:"deviation"`
}

func (r BenchmarkRun) Success() bool {
	return r.Status == model.StatusExactSolved
}

// BenchmarkStats summarizes an experiment. Generation figures cover
// successful runs only.
type BenchmarkStats struct {
	TotalRuns      int     `json:"total_runs"`
	SuccessRuns    int     `json:"success_runs"`
	SuccessRate    float64 `json:"success_rate"`
	AvgGenerations float64 `json:"avg_generations"`
	StdGenerations float64 `json:"std_generations"`
	MinGenerations int     `json:"min_generations"`
	MaxGenerations int     `json:"max_generations"`
	AvgDeviation   float64 `json:"avg_deviation"`
}

type PlotPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

type BenchmarkExperiment struct {
	ID             string             `json:"id"`
	StartedAtUTC   string             `json:"started_at_utc,omitempty"`
	CompletedAtUTC string             `json:"completed_at_utc,omitempty"`
	Coefficients   model.Coefficients `json:"coefficients"`
	PopulationSize int                `json:"population_size"`
	MaxGenerations int                `json:"max_generations"`
	MutationRate   float64            `json:"mutation_rate"`
	BaseSeed       int64              `json:"base_seed"`
	Runs           []BenchmarkRun     `json:"runs"`
	Stats          BenchmarkStats     `json:"stats"`
	AverageBest    []PlotPoint        `json:"average_best,omitempty"`
}

func BuildBenchmarkStats(runs []BenchmarkRun) BenchmarkStats {
	result := BenchmarkStats{TotalRuns: len(runs)}
	if len(runs) == 0 {
		return result
	}

	deviations := make([]float64, 0, len(runs))
	solved := make([]float64, 0, len(runs))
	for _, run := range runs {
		deviations = append(deviations, float64(run.Deviation))
		if !run.Success() {
			continue
		}
		result.SuccessRuns++
		solved = append(solved, float64(run.Generations))
		if result.SuccessRuns == 1 || run.Generations < result.MinGenerations {
			result.MinGenerations = run.Generations
		}
		if run.Generations > result.MaxGenerations {
			result.MaxGenerations = run.Generations
		}
	}
	result.SuccessRate = float64(result.SuccessRuns) / float64(result.TotalRuns)
	result.AvgDeviation = stat.Mean(deviations, nil)
	switch len(solved) {
	case 0:
	case 1:
		result.AvgGenerations = solved[0]
	default:
		result.AvgGenerations, result.StdGenerations = stat.MeanStdDev(solved, nil)
	}
	return result
}

// BuildAverageBestCurve averages best-deviation histories every step
// generations. A history that ended early holds its last value.
func BuildAverageBestCurve(histories [][]int64, step int) []PlotPoint {
	if step <= 0 {
		step = 1
	}
	longest := 0
	for _, h := range histories {
		if len(h) > longest {
			longest = len(h)
		}
	}
	points := make([]PlotPoint, 0, longest/step+1)
	values := make([]float64, 0, len(histories))
	for gen := 0; gen < longest; gen += step {
		values = values[:0]
		for _, h := range histories {
			if len(h) == 0 {
				continue
			}
			idx := gen
			if idx >= len(h) {
				idx = len(h) - 1
			}
			values = append(values, float64(h[idx]))
		}
		points = append(points, PlotPoint{Index: gen, Value: stat.Mean(values, nil)})
	}
	return points
}

func WriteBenchmarkExperiment(baseDir string, exp BenchmarkExperiment) (string, error) {
	if exp.ID == "" {
		return "", fmt.Errorf("experiment id is required")
	}
	path := benchmarkExperimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(path, exp); err != nil {
		return "", err
	}
	return path, nil
}

func ReadBenchmarkExperiment(baseDir, id string) (BenchmarkExperiment, bool, error) {
	if id == "" {
		return BenchmarkExperiment{}, false, fmt.Errorf("experiment id is required")
	}
	var exp BenchmarkExperiment
	ok, err := readJSON(benchmarkExperimentPath(baseDir, id), &exp)
	if err != nil || !ok {
		return BenchmarkExperiment{}, ok, err
	}
	return exp, true, nil
}

// ListBenchmarkExperiments returns experiments newest first.
func ListBenchmarkExperiments(baseDir string) ([]BenchmarkExperiment, error) {
	root := filepath.Join(baseDir, benchmarkExperimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []BenchmarkExperiment{}, nil
		}
		return nil, err
	}

	exps := make([]BenchmarkExperiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadBenchmarkExperiment(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		exps = append(exps, exp)
	}
	sort.Slice(exps, func(i, j int) bool {
		if exps[i].StartedAtUTC == exps[j].StartedAtUTC {
			return exps[i].ID < exps[j].ID
		}
		return exps[i].StartedAtUTC > exps[j].StartedAtUTC
	})
	return exps, nil
}

func benchmarkExperimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, benchmarkExperimentsDir, id, "experiment.json")
}

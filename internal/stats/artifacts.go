package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"diophant/internal/model"
)

const runIndexFile = "run_index.json"

// indexLocks serializes run index updates per artifacts directory.
var indexLocks sync.Map

var artifactFiles = []string{"config.json", "result.json", "fitness_history.json", "generation_diagnostics.json", "diagnostics.csv"}

type RunConfig struct {
	RunID          string             `json:"run_id"`
	Coefficients   model.Coefficients `json:"coefficients"`
	PopulationSize int                `json:"population_size"`
	MaxGenerations int                `json:"max_generations"`
	MutationRate   float64            `json:"mutation_rate"`
	ClampGenes     bool               `json:"clamp_genes"`
	Seed           int64              `json:"seed"`
	Workers        int                `json:"workers"`
}

type RunOutcome struct {
	Status      model.SearchStatus `json:"status"`
	Solution    model.Chromosome   `json:"solution"`
	Deviation   int64              `json:"deviation"`
	Generations int                `json:"generations"`
	Mutations   int                `json:"mutations"`
	ElapsedMS   int64              `json:"elapsed_ms"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	Outcome               RunOutcome                    `json:"outcome"`
	BestByGeneration      []int64                       `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
}

type RunIndexEntry struct {
	RunID          string             `json:"run_id"`
	Coefficients   model.Coefficients `json:"coefficients"`
	PopulationSize int                `json:"population_size"`
	MaxGenerations int                `json:"max_generations"`
	Seed           int64              `json:"seed"`
	Status         model.SearchStatus `json:"status"`
	Deviation      int64              `json:"deviation"`
	Generations    int                `json:"generations"`
	CreatedAtUTC   string             `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "result.json"), artifacts.Outcome); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), map[string]any{"best_by_generation": artifacts.BestByGeneration, "final_deviation": artifacts.Outcome.Deviation}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if err := writeDiagnosticsCSV(filepath.Join(runDir, "diagnostics.csv"), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}

	return runDir, nil
}

// ReadRunArtifacts loads a run directory written by WriteRunArtifacts.
func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	var artifacts RunArtifacts
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &artifacts.Config)
	if err != nil || !ok {
		return RunArtifacts{}, ok, err
	}
	if _, err := readJSON(filepath.Join(baseDir, runID, "result.json"), &artifacts.Outcome); err != nil {
		return RunArtifacts{}, false, err
	}
	var history struct {
		BestByGeneration []int64 `json:"best_by_generation"`
	}
	if _, err := readJSON(filepath.Join(baseDir, runID, "fitness_history.json"), &history); err != nil {
		return RunArtifacts{}, false, err
	}
	artifacts.BestByGeneration = history.BestByGeneration
	if _, err := readJSON(filepath.Join(baseDir, runID, "generation_diagnostics.json"), &artifacts.GenerationDiagnostics); err != nil {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	mu := indexLock(baseDir)
	mu.Lock()
	defer mu.Unlock()

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func writeDiagnosticsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"generation", "best_deviation", "mean_deviation", "worst_deviation", "distinct_genotypes"}); err != nil {
		return err
	}
	for _, d := range diagnostics {
		record := []string{
			strconv.Itoa(d.Generation),
			strconv.FormatInt(d.BestDeviation, 10),
			strconv.FormatFloat(d.MeanDeviation, 'f', 6, 64),
			strconv.FormatInt(d.WorstDeviation, 10),
			strconv.Itoa(d.DistinctGenotypes),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func indexLock(baseDir string) *sync.Mutex {
	key := filepath.Clean(baseDir)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	mu, _ := indexLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// writeJSON replaces path atomically so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

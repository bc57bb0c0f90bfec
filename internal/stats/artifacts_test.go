package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"diophant/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Coefficients:   model.Coefficients{A: 1, B: 1, C: 1, D: 1, Y: 4},
			PopulationSize: 10,
			MaxGenerations: 5,
			MutationRate:   0.01,
			ClampGenes:     true,
			Seed:           1,
			Workers:        1,
		},
		Outcome: RunOutcome{
			Status:      model.StatusExactSolved,
			Solution:    model.Chromosome{1, 1, 1, 1},
			Deviation:   0,
			Generations: 2,
		},
		BestByGeneration: []int64{3, 1, 0},
		GenerationDiagnostics: []model.GenerationDiagnostics{
			{Generation: 0, BestDeviation: 3, MeanDeviation: 4.5, WorstDeviation: 6, DistinctGenotypes: 9},
			{Generation: 1, BestDeviation: 1, MeanDeviation: 2.25, WorstDeviation: 4, DistinctGenotypes: 7},
			{Generation: 2, BestDeviation: 0, MeanDeviation: 1, WorstDeviation: 3, DistinctGenotypes: 5},
		},
	}
}

func TestWriteReadAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-123"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	loaded, ok, err := ReadRunArtifacts(baseDir, "run-123")
	if err != nil {
		t.Fatalf("read artifacts: %v", err)
	}
	if !ok {
		t.Fatal("expected artifacts")
	}
	if loaded.Outcome.Solution != (model.Chromosome{1, 1, 1, 1}) || len(loaded.BestByGeneration) != 3 || len(loaded.GenerationDiagnostics) != 3 {
		t.Fatalf("unexpected artifacts: %+v", loaded)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestDiagnosticsCSVHasOneRowPerGeneration(t *testing.T) {
	runDir, err := WriteRunArtifacts(t.TempDir(), sampleArtifacts("run-csv"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	f, err := os.Open(filepath.Join(runDir, "diagnostics.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if records[0][1] != "best_deviation" || records[3][1] != "0" {
		t.Fatalf("unexpected csv content: %v", records)
	}
}

func TestReadRunArtifactsMissing(t *testing.T) {
	_, ok, err := ReadRunArtifacts(t.TempDir(), "nope")
	if err != nil {
		t.Fatalf("read missing: %v", err)
	}
	if ok {
		t.Fatal("expected missing artifacts")
	}
}

func TestRunIndexNewestFirstAndUpsert(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, e := range entries {
		if err := AppendRunIndex(baseDir, e); err != nil {
			t.Fatalf("append %s: %v", e.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-04T00:00:00Z", Deviation: 2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(index))
	}
	if index[0].RunID != "a" || index[0].Deviation != 2 || index[1].RunID != "b" || index[2].RunID != "c" {
		t.Fatalf("unexpected order: %+v", index)
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestListRunIndexEmptyDir(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %d", len(index))
	}
}

func TestAppendRunIndexConcurrentWriters(t *testing.T) {
	baseDir := t.TempDir()
	const writers = 32

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := RunIndexEntry{RunID: fmt.Sprintf("run-%02d", i), CreatedAtUTC: fmt.Sprintf("2026-01-01T00:00:%02dZ", i)}
			if err := AppendRunIndex(baseDir, entry); err != nil {
				errs <- err
				return
			}
			if _, err := ListRunIndex(baseDir); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(index))
	}
	leftovers, err := filepath.Glob(filepath.Join(baseDir, ".*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

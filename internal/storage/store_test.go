package storage

import (
	"context"
	"testing"

	"diophant/internal/model"
)

func sampleRun(id, createdAt string, deviation int64) model.RunRecord {
	return Stamp(model.RunRecord{
		ID:               id,
		CreatedAtUTC:     createdAt,
		Coefficients:     model.Coefficients{A: 1, B: 2, C: 3, D: 4, Y: 30},
		PopulationSize:   100,
		MaxGenerations:   1000,
		MutationRate:     0.01,
		Seed:             42,
		Workers:          1,
		Status:           model.StatusBudgetExhausted,
		Generations:      1000,
		Solution:         model.Chromosome{1, 2, 3, 4},
		Deviation:        deviation,
		BestByGeneration: []int64{9, 5, deviation},
	})
}

// exerciseStore checks the behaviour every Store backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}

	runs := []model.RunRecord{
		sampleRun("r1", "2026-01-01T00:00:00Z", 3),
		sampleRun("r2", "2026-01-03T00:00:00Z", 0),
		sampleRun("r3", "2026-01-02T00:00:00Z", 1),
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "r2")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run r2")
	}
	if loaded.Deviation != 0 || loaded.Solution != (model.Chromosome{1, 2, 3, 4}) || len(loaded.BestByGeneration) != 3 {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	listed, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "r2" || listed[1].ID != "r3" || listed[2].ID != "r1" {
		t.Fatalf("expected newest-first order r2,r3,r1, got %+v", listed)
	}
	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(limited))
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, BestDeviation: 9, MeanDeviation: 20.5, WorstDeviation: 40, DistinctGenotypes: 10},
		{Generation: 1, BestDeviation: 5, MeanDeviation: 11, WorstDeviation: 30, DistinctGenotypes: 8},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "r1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "r1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok || len(gotDiagnostics) != 2 || gotDiagnostics[1].BestDeviation != 5 {
		t.Fatalf("unexpected diagnostics: ok=%t %+v", ok, gotDiagnostics)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	listed, err = store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty store after reset, got %d runs", len(listed))
	}
	if _, ok, err := store.GetGenerationDiagnostics(ctx, "r1"); err != nil || ok {
		t.Fatalf("expected diagnostics cleared, ok=%t err=%v", ok, err)
	}
}

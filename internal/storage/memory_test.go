package storage

import (
	"context"
	"testing"

	"diophant/internal/model"
)

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("r1", "2026-01-01T00:00:00Z", 0)); err == nil {
		t.Fatal("expected uninitialized store error")
	}
}

func TestMemoryStoreCopiesHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := sampleRun("r1", "2026-01-01T00:00:00Z", 2)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.BestByGeneration[0] = 999

	loaded, _, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.BestByGeneration[0] == 999 {
		t.Fatal("store must not alias caller slices")
	}
}

func TestMemoryStoreEqualTimestampsPreferLatestSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, model.RunRecord{ID: id, CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "c" {
		t.Fatalf("expected latest saved run first, got %+v", runs)
	}
}

package storage

import (
	"context"

	"diophant/internal/model"
)

// Store persists solve runs and their per-generation diagnostics.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
}

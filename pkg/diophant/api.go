package diophant

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"diophant/internal/evo"
	"diophant/internal/input"
	"diophant/internal/metrics"
	"diophant/internal/model"
	"diophant/internal/stats"
	"diophant/internal/storage"
)

const (
	defaultDBPath        = "diophant.db"
	defaultRunLimit      = 20
	defaultBenchmarkRuns = 10
	defaultCurveStep     = 10

	progressLogInterval = 100
)

// ValidationError is returned when solve inputs are blank, not integers, or
// not strictly positive. No search is attempted.
type ValidationError = input.ValidationError

var (
	ErrBlank       = input.ErrBlank
	ErrNotInteger  = input.ErrNotInteger
	ErrNonPositive = input.ErrNonPositive
	ErrTooLarge    = input.ErrTooLarge
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidSettings marks search settings outside their allowed range.
	ErrInvalidSettings = errors.New("invalid search settings")
)

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir receives per-run artifact directories and the run index.
	// Empty disables artifact output.
	ArtifactsDir string
	Logger       *slog.Logger
	Metrics      *metrics.Collectors
}

type Client struct {
	store        storage.Store
	artifactsDir string
	logger       *slog.Logger
	metrics      *metrics.Collectors

	initOnce sync.Once
	initErr  error
}

type SolveRequest struct {
	A int64
	B int64
	C int64
	D int64
	Y int64

	// PopulationSize, MaxGenerations and MutationRate use their defaults
	// (100, 1000, 0.01) when 0. Mutation cannot be switched off.
	PopulationSize int
	MaxGenerations int
	MutationRate   float64
	// AllowNonPositive disables the gene floor of 1 so mutation may drive
	// genes to zero or below, as in the unclamped search.
	AllowNonPositive bool
	// Seed 0 draws a fresh seed from the system entropy source.
	Seed    int64
	Workers int
}

// Result is the best candidate found. Deviation 0 means an exact solution.
type Result struct {
	X1        int64 `json:"x1"`
	X2        int64 `json:"x2"`
	X3        int64 `json:"x3"`
	X4        int64 `json:"x4"`
	Deviation int64 `json:"deviation"`
}

func (r Result) Exact() bool {
	return r.Deviation == 0
}

func (r Result) String() string {
	return input.FormatResult(model.Chromosome{r.X1, r.X2, r.X3, r.X4}, r.Deviation)
}

type SolveSummary struct {
	RunID            string
	Result           Result
	Status           string
	Generations      int
	Mutations        int
	Seed             int64
	BestByGeneration []int64
	ArtifactsDir     string
	Elapsed          time.Duration
}

type BenchmarkRequest struct {
	SolveRequest
	Runs     int
	Parallel int
	// CurveStep is the generation stride of the averaged best-deviation curve.
	CurveStep int
}

type BenchmarkSummary struct {
	ExperimentID   string   `json:"experiment_id"`
	BaseSeed       int64    `json:"base_seed"`
	TotalRuns      int      `json:"total_runs"`
	SuccessRuns    int      `json:"success_runs"`
	SuccessRate    float64  `json:"success_rate"`
	AvgGenerations float64  `json:"avg_generations"`
	StdGenerations float64  `json:"std_generations"`
	MinGenerations int      `json:"min_generations"`
	MaxGenerations int      `json:"max_generations"`
	AvgDeviation   float64  `json:"avg_deviation"`
	RunIDs         []string `json:"run_ids"`
	ReportPath     string   `json:"report_path,omitempty"`
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string `json:"run_id"`
	CreatedAtUTC   string `json:"created_at_utc,omitempty"`
	A              int64  `json:"a"`
	B              int64  `json:"b"`
	C              int64  `json:"c"`
	D              int64  `json:"d"`
	Y              int64  `json:"y"`
	PopulationSize int    `json:"population_size"`
	MaxGenerations int    `json:"max_generations"`
	Seed           int64  `json:"seed"`
	Status         string `json:"status"`
	Generations    int    `json:"generations"`
	Result         Result `json:"result"`
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// Solve runs one search with default settings and an unseeded random source.
// It fails only when an argument is not strictly positive.
func Solve(a, b, c, d, y int64) (Result, error) {
	coeffs := model.Coefficients{A: a, B: b, C: c, D: d, Y: y}
	if err := input.CheckPositive(coeffs); err != nil {
		return Result{}, err
	}
	seed, err := entropySeed()
	if err != nil {
		return Result{}, err
	}
	result, err := runSearch(coeffs, SolveRequest{Seed: seed}, nil)
	if err != nil {
		return Result{}, err
	}
	return toResult(result.Best, result.Deviation), nil
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: opts.ArtifactsDir,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

func (c *Client) Reset(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

func (c *Client) Solve(ctx context.Context, req SolveRequest) (SolveSummary, error) {
	coeffs, req, err := c.prepare(req)
	if err != nil {
		return SolveSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return SolveSummary{}, err
	}

	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)
	logger.Debug("search started",
		"coefficients", fmt.Sprintf("%d,%d,%d,%d", coeffs.A, coeffs.B, coeffs.C, coeffs.D),
		"y", coeffs.Y,
		"population", req.PopulationSize,
		"max_generations", req.MaxGenerations,
		"seed", req.Seed,
	)

	started := time.Now()
	result, err := runSearch(coeffs, req, func(d model.GenerationDiagnostics) {
		if d.Generation%progressLogInterval == 0 {
			logger.Debug("generation scored", "generation", d.Generation, "best_deviation", d.BestDeviation, "mean_deviation", d.MeanDeviation)
		}
	})
	if err != nil {
		return SolveSummary{}, err
	}
	elapsed := time.Since(started)

	run, runDir, err := c.record(ctx, runID, started, elapsed, coeffs, req, result)
	if err != nil {
		return SolveSummary{}, err
	}

	logger.Info("search finished",
		"status", result.Status,
		"deviation", result.Deviation,
		"generations", result.Generations,
		"elapsed", elapsed,
	)
	return SolveSummary{
		RunID:            run.ID,
		Result:           toResult(result.Best, result.Deviation),
		Status:           string(result.Status),
		Generations:      result.Generations,
		Mutations:        result.Mutations,
		Seed:             req.Seed,
		BestByGeneration: append([]int64(nil), result.BestByGeneration...),
		ArtifactsDir:     runDir,
		Elapsed:          elapsed,
	}, nil
}

// Benchmark repeats one search under consecutive seeds starting at Seed and
// records every run plus an experiment summary.
func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkSummary, error) {
	if req.Runs < 0 || req.Parallel < 0 || req.CurveStep < 0 {
		return BenchmarkSummary{}, fmt.Errorf("%w: runs, parallel and curve step must be >= 0", ErrInvalidSettings)
	}
	if req.Runs == 0 {
		req.Runs = defaultBenchmarkRuns
	}
	if req.Parallel == 0 {
		req.Parallel = 1
	}
	if req.CurveStep == 0 {
		req.CurveStep = defaultCurveStep
	}
	coeffs, base, err := c.prepare(req.SolveRequest)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return BenchmarkSummary{}, err
	}

	experimentID := uuid.NewString()
	logger := c.logger.With("experiment_id", experimentID)
	startedAt := time.Now().UTC()
	logger.Info("benchmark started", "runs", req.Runs, "parallel", req.Parallel, "base_seed", base.Seed)

	type seededRun struct {
		req     SolveRequest
		result  evo.RunResult
		started time.Time
		elapsed time.Duration
		err     error
	}
	runs := make([]seededRun, req.Runs)
	p := pool.New().WithMaxGoroutines(req.Parallel)
	for i := range runs {
		runs[i].req = base
		runs[i].req.Seed = base.Seed + int64(i)
		sr := &runs[i]
		p.Go(func() {
			sr.started = time.Now()
			sr.result, sr.err = runSearch(coeffs, sr.req, nil)
			sr.elapsed = time.Since(sr.started)
		})
	}
	p.Wait()

	exp := stats.BenchmarkExperiment{
		ID:             experimentID,
		StartedAtUTC:   startedAt.Format(time.RFC3339Nano),
		Coefficients:   coeffs,
		PopulationSize: base.PopulationSize,
		MaxGenerations: base.MaxGenerations,
		MutationRate:   base.MutationRate,
		BaseSeed:       base.Seed,
		Runs:           make([]stats.BenchmarkRun, 0, len(runs)),
	}
	histories := make([][]int64, 0, len(runs))
	for _, sr := range runs {
		if sr.err != nil {
			return BenchmarkSummary{}, fmt.Errorf("benchmark seed %d: %w", sr.req.Seed, sr.err)
		}
		run, _, err := c.record(ctx, uuid.NewString(), sr.started, sr.elapsed, coeffs, sr.req, sr.result)
		if err != nil {
			return BenchmarkSummary{}, err
		}
		exp.Runs = append(exp.Runs, stats.BenchmarkRun{
			RunID:       run.ID,
			Seed:        run.Seed,
			Status:      run.Status,
			Generations: run.Generations,
			Deviation:   run.Deviation,
		})
		histories = append(histories, sr.result.BestByGeneration)
	}
	exp.Stats = stats.BuildBenchmarkStats(exp.Runs)
	exp.AverageBest = stats.BuildAverageBestCurve(histories, req.CurveStep)
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)

	summary := BenchmarkSummary{
		ExperimentID:   experimentID,
		BaseSeed:       base.Seed,
		TotalRuns:      exp.Stats.TotalRuns,
		SuccessRuns:    exp.Stats.SuccessRuns,
		SuccessRate:    exp.Stats.SuccessRate,
		AvgGenerations: exp.Stats.AvgGenerations,
		StdGenerations: exp.Stats.StdGenerations,
		MinGenerations: exp.Stats.MinGenerations,
		MaxGenerations: exp.Stats.MaxGenerations,
		AvgDeviation:   exp.Stats.AvgDeviation,
		RunIDs:         make([]string, 0, len(exp.Runs)),
	}
	for _, r := range exp.Runs {
		summary.RunIDs = append(summary.RunIDs, r.RunID)
	}
	if c.artifactsDir != "" {
		path, err := stats.WriteBenchmarkExperiment(c.artifactsDir, exp)
		if err != nil {
			return BenchmarkSummary{}, err
		}
		summary.ReportPath = filepath.Clean(path)
	}

	logger.Info("benchmark finished",
		"success_runs", summary.SuccessRuns,
		"total_runs", summary.TotalRuns,
		"avg_generations", summary.AvgGenerations,
	)
	return summary, nil
}

// prepare validates a request and resolves its defaults and seed.
func (c *Client) prepare(req SolveRequest) (model.Coefficients, SolveRequest, error) {
	coeffs := model.Coefficients{A: req.A, B: req.B, C: req.C, D: req.D, Y: req.Y}
	if err := input.CheckPositive(coeffs); err != nil {
		c.metrics.ObserveValidationFailure()
		return coeffs, req, err
	}
	if req.PopulationSize < 0 || req.MaxGenerations < 0 || req.Workers < 0 {
		return coeffs, req, fmt.Errorf("%w: population size, max generations and workers must be >= 0", ErrInvalidSettings)
	}
	if req.MutationRate < 0 || req.MutationRate > 1 {
		return coeffs, req, fmt.Errorf("%w: mutation rate must be in [0, 1], got %g", ErrInvalidSettings, req.MutationRate)
	}
	req = withDefaults(req)
	if req.Seed == 0 {
		seed, err := entropySeed()
		if err != nil {
			return coeffs, req, err
		}
		req.Seed = seed
	}
	return coeffs, req, nil
}

// record persists a finished search and, when enabled, its artifacts.
func (c *Client) record(ctx context.Context, runID string, started time.Time, elapsed time.Duration, coeffs model.Coefficients, req SolveRequest, result evo.RunResult) (model.RunRecord, string, error) {
	run := storage.Stamp(model.RunRecord{
		ID:               runID,
		CreatedAtUTC:     started.UTC().Format(time.RFC3339Nano),
		Coefficients:     coeffs,
		PopulationSize:   req.PopulationSize,
		MaxGenerations:   req.MaxGenerations,
		MutationRate:     req.MutationRate,
		Seed:             req.Seed,
		Workers:          req.Workers,
		Status:           result.Status,
		Generations:      result.Generations,
		Solution:         result.Best,
		Deviation:        result.Deviation,
		BestByGeneration: result.BestByGeneration,
		ElapsedMS:        elapsed.Milliseconds(),
	})
	if err := c.store.SaveRun(ctx, run); err != nil {
		return model.RunRecord{}, "", fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return model.RunRecord{}, "", fmt.Errorf("save diagnostics %s: %w", runID, err)
	}
	c.metrics.ObserveRun(run)

	if c.artifactsDir == "" {
		return run, "", nil
	}
	runDir, err := c.writeArtifacts(run, req, result)
	if err != nil {
		return model.RunRecord{}, "", err
	}
	return run, filepath.Clean(runDir), nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunLimit
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunItem(run))
	}
	if len(out) > 0 || c.artifactsDir == "" {
		return out, nil
	}

	// Fall back to the on-disk index for runs recorded by earlier processes.
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	for _, e := range entries {
		item := RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			A:              e.Coefficients.A,
			B:              e.Coefficients.B,
			C:              e.Coefficients.C,
			D:              e.Coefficients.D,
			Y:              e.Coefficients.Y,
			PopulationSize: e.PopulationSize,
			MaxGenerations: e.MaxGenerations,
			Seed:           e.Seed,
			Status:         string(e.Status),
			Generations:    e.Generations,
			Result:         Result{Deviation: e.Deviation},
		}
		if artifacts, ok, err := stats.ReadRunArtifacts(c.artifactsDir, e.RunID); err != nil {
			return nil, err
		} else if ok {
			item.Result = toResult(artifacts.Outcome.Solution, artifacts.Outcome.Deviation)
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, runID string) (RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return RunItem{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return RunItem{}, err
	}
	if ok {
		return toRunItem(run), nil
	}
	if c.artifactsDir != "" {
		artifacts, ok, err := stats.ReadRunArtifacts(c.artifactsDir, runID)
		if err != nil {
			return RunItem{}, err
		}
		if ok {
			return RunItem{
				RunID:          runID,
				A:              artifacts.Config.Coefficients.A,
				B:              artifacts.Config.Coefficients.B,
				C:              artifacts.Config.Coefficients.C,
				D:              artifacts.Config.Coefficients.D,
				Y:              artifacts.Config.Coefficients.Y,
				PopulationSize: artifacts.Config.PopulationSize,
				MaxGenerations: artifacts.Config.MaxGenerations,
				Seed:           artifacts.Config.Seed,
				Status:         string(artifacts.Outcome.Status),
				Generations:    artifacts.Outcome.Generations,
				Result:         toResult(artifacts.Outcome.Solution, artifacts.Outcome.Deviation),
			}, nil
		}
	}
	return RunItem{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok && c.artifactsDir != "" {
		artifacts, found, err := stats.ReadRunArtifacts(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		diagnostics, ok = artifacts.GenerationDiagnostics, found
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[len(diagnostics)-req.Limit:]
	}
	return diagnostics, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if c.artifactsDir == "" {
		return ExportSummary{}, errors.New("export requires an artifacts directory")
	}
	if req.OutDir == "" {
		return ExportSummary{}, errors.New("export requires an output directory")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return runs[0].RunID, nil
}

func (c *Client) writeArtifacts(run model.RunRecord, req SolveRequest, result evo.RunResult) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          run.ID,
			Coefficients:   run.Coefficients,
			PopulationSize: req.PopulationSize,
			MaxGenerations: req.MaxGenerations,
			MutationRate:   req.MutationRate,
			ClampGenes:     !req.AllowNonPositive,
			Seed:           req.Seed,
			Workers:        req.Workers,
		},
		Outcome: stats.RunOutcome{
			Status:      result.Status,
			Solution:    result.Best,
			Deviation:   result.Deviation,
			Generations: result.Generations,
			Mutations:   result.Mutations,
			ElapsedMS:   run.ElapsedMS,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.Diagnostics,
	})
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:          run.ID,
		Coefficients:   run.Coefficients,
		PopulationSize: req.PopulationSize,
		MaxGenerations: req.MaxGenerations,
		Seed:           req.Seed,
		Status:         result.Status,
		Deviation:      result.Deviation,
		Generations:    result.Generations,
		CreatedAtUTC:   run.CreatedAtUTC,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

func runSearch(coeffs model.Coefficients, req SolveRequest, onGeneration func(model.GenerationDiagnostics)) (evo.RunResult, error) {
	req = withDefaults(req)
	mutation := evo.NewBoundedDeltaMutation()
	mutation.Rate = req.MutationRate
	mutation.Clamp = !req.AllowNonPositive

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Coefficients:   coeffs,
		PopulationSize: req.PopulationSize,
		MaxGenerations: req.MaxGenerations,
		Workers:        req.Workers,
		Seed:           req.Seed,
		Selector:       evo.RouletteSelector{},
		Mutation:       mutation,
		OnGeneration:   onGeneration,
	})
	if err != nil {
		return evo.RunResult{}, err
	}
	return monitor.Run()
}

func withDefaults(req SolveRequest) SolveRequest {
	if req.PopulationSize <= 0 {
		req.PopulationSize = evo.DefaultPopulationSize
	}
	if req.MaxGenerations <= 0 {
		req.MaxGenerations = evo.DefaultMaxGenerations
	}
	if req.MutationRate <= 0 {
		req.MutationRate = evo.DefaultMutationRate
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	return req
}

func entropySeed() (int64, error) {
	var buf [8]byte
	for {
		if _, err := crand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read entropy seed: %w", err)
		}
		// Zero is reserved for "draw a seed".
		if seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1); seed != 0 {
			return seed, nil
		}
	}
}

func toResult(ch model.Chromosome, deviation int64) Result {
	return Result{X1: ch[0], X2: ch[1], X3: ch[2], X4: ch[3], Deviation: deviation}
}

func toRunItem(run model.RunRecord) RunItem {
	return RunItem{
		RunID:          run.ID,
		CreatedAtUTC:   run.CreatedAtUTC,
		A:              run.Coefficients.A,
		B:              run.Coefficients.B,
		C:              run.Coefficients.C,
		D:              run.Coefficients.D,
		Y:              run.Coefficients.Y,
		PopulationSize: run.PopulationSize,
		MaxGenerations: run.MaxGenerations,
		Seed:           run.Seed,
		Status:         string(run.Status),
		Generations:    run.Generations,
		Result:         toResult(run.Solution, run.Deviation),
	}
}

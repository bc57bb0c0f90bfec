// Package server exposes the solver over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diophant/internal/input"
	"diophant/internal/model"
	"diophant/pkg/diophant"
)

// Solver is the subset of *diophant.Client the HTTP layer needs.
type Solver interface {
	Solve(ctx context.Context, req diophant.SolveRequest) (diophant.SolveSummary, error)
	Runs(ctx context.Context, req diophant.RunsRequest) ([]diophant.RunItem, error)
	Run(ctx context.Context, runID string) (diophant.RunItem, error)
	Diagnostics(ctx context.Context, req diophant.DiagnosticsRequest) ([]model.GenerationDiagnostics, error)
	Benchmark(ctx context.Context, req diophant.BenchmarkRequest) (diophant.BenchmarkSummary, error)
}

const maxBenchmarkRuns = 100

type Config struct {
	Solver   Solver
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	// MaxPopulation and MaxGenerations cap per-request search sizes; 0 disables a cap.
	MaxPopulation  int
	MaxGenerations int
}

type solveBody struct {
	A                int64   `json:"a"`
	B                int64   `json:"b"`
	C                int64   `json:"c"`
	D                int64   `json:"d"`
	Y                int64   `json:"y"`
	PopulationSize   int     `json:"population_size"`
	MaxGenerations   int     `json:"max_generations"`
	MutationRate     float64 `json:"mutation_rate"`
	AllowNonPositive bool    `json:"allow_non_positive"`
	Seed             int64   `json:"seed"`
}

type benchmarkBody struct {
	solveBody
	Runs     int `json:"runs"`
	Parallel int `json:"parallel"`
}

type runResponse struct {
	RunID          string          `json:"run_id"`
	CreatedAtUTC   string          `json:"created_at_utc,omitempty"`
	Coefficients   [5]int64        `json:"coefficients"`
	PopulationSize int             `json:"population_size"`
	MaxGenerations int             `json:"max_generations"`
	Seed           int64           `json:"seed"`
	Status         string          `json:"status"`
	Generations    int             `json:"generations"`
	Result         diophant.Result `json:"result"`
}

func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.POST("/solve", func(c *gin.Context) {
		var body solveBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := checkLimits(cfg, body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		summary, err := cfg.Solver.Solve(c.Request.Context(), body.request())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"run_id":      summary.RunID,
			"status":      summary.Status,
			"generations": summary.Generations,
			"seed":        summary.Seed,
			"result":      summary.Result,
			"text":        summary.Result.String(),
		})
	})

	r.POST("/benchmark", func(c *gin.Context) {
		var body benchmarkBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := checkLimits(cfg, body.solveBody); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.Runs < 0 || body.Runs > maxBenchmarkRuns {
			c.JSON(http.StatusBadRequest, gin.H{"error": "runs must be in [0, " + strconv.Itoa(maxBenchmarkRuns) + "]"})
			return
		}

		summary, err := cfg.Solver.Benchmark(c.Request.Context(), diophant.BenchmarkRequest{
			SolveRequest: body.request(),
			Runs:         body.Runs,
			Parallel:     body.Parallel,
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, summary)
	})

	r.GET("/runs", func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		runs, err := cfg.Solver.Runs(c.Request.Context(), diophant.RunsRequest{Limit: limit})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		out := make([]runResponse, 0, len(runs))
		for _, run := range runs {
			out = append(out, toRunResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"runs": out})
	})

	r.GET("/runs/:id", func(c *gin.Context) {
		run, err := cfg.Solver.Run(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toRunResponse(run))
	})

	r.GET("/runs/:id/diagnostics", func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		diagnostics, err := cfg.Solver.Diagnostics(c.Request.Context(), diophant.DiagnosticsRequest{RunID: c.Param("id"), Limit: limit})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "diagnostics": diagnostics})
	})

	return r
}

func (b solveBody) request() diophant.SolveRequest {
	return diophant.SolveRequest{
		A:                b.A,
		B:                b.B,
		C:                b.C,
		D:                b.D,
		Y:                b.Y,
		PopulationSize:   b.PopulationSize,
		MaxGenerations:   b.MaxGenerations,
		MutationRate:     b.MutationRate,
		AllowNonPositive: b.AllowNonPositive,
		Seed:             b.Seed,
	}
}

func checkLimits(cfg Config, body solveBody) error {
	if cfg.MaxPopulation > 0 && body.PopulationSize > cfg.MaxPopulation {
		return errors.New("population_size exceeds " + strconv.Itoa(cfg.MaxPopulation))
	}
	if cfg.MaxGenerations > 0 && body.MaxGenerations > cfg.MaxGenerations {
		return errors.New("max_generations exceeds " + strconv.Itoa(cfg.MaxGenerations))
	}
	return nil
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *input.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, diophant.ErrInvalidSettings):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, diophant.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func toRunResponse(run diophant.RunItem) runResponse {
	return runResponse{
		RunID:          run.RunID,
		CreatedAtUTC:   run.CreatedAtUTC,
		Coefficients:   [5]int64{run.A, run.B, run.C, run.D, run.Y},
		PopulationSize: run.PopulationSize,
		MaxGenerations: run.MaxGenerations,
		Seed:           run.Seed,
		Status:         run.Status,
		Generations:    run.Generations,
		Result:         run.Result,
	}
}

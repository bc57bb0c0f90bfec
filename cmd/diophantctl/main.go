package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"diophant/internal/input"
	"diophant/internal/metrics"
	"diophant/internal/server"
	"diophant/internal/stats"
	"diophant/internal/storage"
	"diophant/pkg/diophant"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"

	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "solve":
		return runSolve(ctx, args[1:])
	case "benchmark":
		return runBenchmark(ctx, args[1:])
	case "experiments":
		return runExperiments(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type commonFlags struct {
	storeKind    *string
	dbPath       *string
	artifactsDir *string
	logLevel     *string
	logFormat    *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		storeKind:    fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", "diophant.db", "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", benchmarksDir, "run artifact directory (empty disables artifacts)"),
		logLevel:     fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		logFormat:    fs.String("log-format", "text", "log format: text|json"),
	}
}

func (f commonFlags) open(m *metrics.Collectors) (*diophant.Client, *slog.Logger, error) {
	logger, err := newLogger(os.Stderr, *f.logLevel, *f.logFormat)
	if err != nil {
		return nil, nil, err
	}
	client, err := diophant.New(diophant.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

type solveFlags struct {
	configPath       *string
	a, b, c, d, y    *string
	population       *int
	generations      *int
	mutationRate     *float64
	allowNonPositive *bool
	seed             *int64
	workers          *int
}

func addSolveFlags(fs *flag.FlagSet) solveFlags {
	return solveFlags{
		configPath:       fs.String("config", "", "optional solve config JSON path"),
		a:                fs.String("a", "", "coefficient a"),
		b:                fs.String("b", "", "coefficient b"),
		c:                fs.String("c", "", "coefficient c"),
		d:                fs.String("d", "", "coefficient d"),
		y:                fs.String("y", "", "target y"),
		population:       fs.Int("pop", 0, "population size (0 uses the default of 100)"),
		generations:      fs.Int("gens", 0, "generation budget (0 uses the default of 1000)"),
		mutationRate:     fs.Float64("mutation-rate", 0, "per-chromosome mutation probability (0 uses the default of 0.01)"),
		allowNonPositive: fs.Bool("allow-non-positive", false, "let mutation drive genes to zero or below"),
		seed:             fs.Int64("seed", 0, "rng seed (0 draws from system entropy)"),
		workers:          fs.Int("workers", 1, "fitness evaluation workers"),
	}
}

// request layers explicit flags over the config file. Stdin is read only when
// neither flags nor positional values supplied a coefficient.
func (sf solveFlags) request(fs *flag.FlagSet) (diophant.SolveRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var cfg solveConfig
	if *sf.configPath != "" {
		loaded, err := loadSolveConfig(*sf.configPath)
		if err != nil {
			return diophant.SolveRequest{}, err
		}
		cfg = loaded
	} else {
		cfg.Req = diophant.SolveRequest{
			PopulationSize:   *sf.population,
			MaxGenerations:   *sf.generations,
			MutationRate:     *sf.mutationRate,
			AllowNonPositive: *sf.allowNonPositive,
			Seed:             *sf.seed,
			Workers:          *sf.workers,
		}
	}
	overrideFromFlags(&cfg, setFlags, map[string]any{
		"a":                  *sf.a,
		"b":                  *sf.b,
		"c":                  *sf.c,
		"d":                  *sf.d,
		"y":                  *sf.y,
		"pop":                *sf.population,
		"gens":               *sf.generations,
		"mutation-rate":      *sf.mutationRate,
		"allow-non-positive": *sf.allowNonPositive,
		"seed":               *sf.seed,
		"workers":            *sf.workers,
	})

	if rest := fs.Args(); len(rest) > 0 {
		if cfg.hasFields() {
			return diophant.SolveRequest{}, errors.New("use either coefficient flags or positional values, not both")
		}
		if len(rest) != len(input.FieldNames) {
			return diophant.SolveRequest{}, fmt.Errorf("expected %d positional values (a b c d y), got %d", len(input.FieldNames), len(rest))
		}
		copy(cfg.Fields[:], rest)
	}
	if !cfg.hasFields() {
		fields, err := readFields(os.Stdin, os.Stdout)
		if err != nil {
			return diophant.SolveRequest{}, err
		}
		cfg.Fields = fields
	}

	coeffs, err := input.ParseFields(cfg.Fields[0], cfg.Fields[1], cfg.Fields[2], cfg.Fields[3], cfg.Fields[4])
	if err != nil {
		return diophant.SolveRequest{}, err
	}
	req := cfg.Req
	req.A, req.B, req.C, req.D, req.Y = coeffs.A, coeffs.B, coeffs.C, coeffs.D, coeffs.Y
	return req, nil
}

func runSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	solve := addSolveFlags(fs)
	jsonOut := fs.Bool("json", false, "emit solve summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := solve.request(fs)
	if err != nil {
		return err
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Solve(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		type solveOutput struct {
			RunID        string          `json:"run_id"`
			Status       string          `json:"status"`
			Result       diophant.Result `json:"result"`
			Generations  int             `json:"generations"`
			Mutations    int             `json:"mutations"`
			Seed         int64           `json:"seed"`
			ElapsedMS    int64           `json:"elapsed_ms"`
			ArtifactsDir string          `json:"artifacts_dir,omitempty"`
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(solveOutput{
			RunID:        summary.RunID,
			Status:       summary.Status,
			Result:       summary.Result,
			Generations:  summary.Generations,
			Mutations:    summary.Mutations,
			Seed:         summary.Seed,
			ElapsedMS:    summary.Elapsed.Milliseconds(),
			ArtifactsDir: summary.ArtifactsDir,
		})
	}

	fmt.Println(summary.Result.String())
	fmt.Printf("run_id=%s status=%s generations=%s seed=%d elapsed=%s\n",
		summary.RunID,
		summary.Status,
		humanize.Comma(int64(summary.Generations)),
		summary.Seed,
		summary.Elapsed.Round(time.Microsecond),
	)
	if summary.ArtifactsDir != "" {
		fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	}
	return nil
}

func runBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	common := addCommonFlags(fs)
	solve := addSolveFlags(fs)
	runs := fs.Int("runs", 10, "number of seeded runs")
	parallel := fs.Int("parallel", 1, "runs searched concurrently")
	curveStep := fs.Int("curve-step", 10, "generation stride of the averaged best-deviation curve")
	jsonOut := fs.Bool("json", false, "emit benchmark summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runs <= 0 || *parallel <= 0 || *curveStep <= 0 {
		return errors.New("runs, parallel and curve-step must be > 0")
	}
	req, err := solve.request(fs)
	if err != nil {
		return err
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Benchmark(ctx, diophant.BenchmarkRequest{
		SolveRequest: req,
		Runs:         *runs,
		Parallel:     *parallel,
		CurveStep:    *curveStep,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("experiment_id=%s runs=%d solved=%d success_rate=%.3f avg_gens=%.2f std_gens=%.2f min_gens=%d max_gens=%d avg_deviation=%.3f base_seed=%d\n",
		summary.ExperimentID,
		summary.TotalRuns,
		summary.SuccessRuns,
		summary.SuccessRate,
		summary.AvgGenerations,
		summary.StdGenerations,
		summary.MinGenerations,
		summary.MaxGenerations,
		summary.AvgDeviation,
		summary.BaseSeed,
	)
	if summary.ReportPath != "" {
		fmt.Printf("report=%s\n", summary.ReportPath)
	}
	return nil
}

func runExperiments(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("experiments", flag.ContinueOnError)
	artifactsDir := fs.String("artifacts-dir", benchmarksDir, "run artifact directory")
	limit := fs.Int("limit", 20, "max experiments to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	exps, err := stats.ListBenchmarkExperiments(*artifactsDir)
	if err != nil {
		return err
	}
	if len(exps) == 0 {
		fmt.Println("no experiments found")
		return nil
	}
	if len(exps) > *limit {
		exps = exps[:*limit]
	}
	for _, exp := range exps {
		c := exp.Coefficients
		fmt.Printf("experiment_id=%s started=%s equation=%d*x1+%d*x2+%d*x3+%d*x4=%d runs=%d solved=%d avg_gens=%.2f\n",
			exp.ID,
			createdAgo(exp.StartedAtUTC),
			c.A, c.B, c.C, c.D, c.Y,
			exp.Stats.TotalRuns,
			exp.Stats.SuccessRuns,
			exp.Stats.AvgGenerations,
		)
	}
	return nil
}

// readFields collects the five input values, prompting when in is a terminal
// and otherwise reading whitespace-separated values. Missing values stay
// blank so validation reports them.
func readFields(in *os.File, out io.Writer) ([len(input.FieldNames)]string, error) {
	var fields [len(input.FieldNames)]string
	if isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()) {
		reader := bufio.NewReader(in)
		for i, name := range input.FieldNames {
			fmt.Fprintf(out, "%s = ", name)
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fields, err
			}
			fields[i] = strings.TrimSpace(line)
			if errors.Is(err, io.EOF) {
				break
			}
		}
		return fields, nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)
	for i := range fields {
		if !scanner.Scan() {
			break
		}
		fields[i] = scanner.Text()
	}
	return fields, scanner.Err()
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, diophant.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created=%s equation=%s status=%s deviation=%d gens=%s pop=%d seed=%d\n",
			item.RunID,
			createdAgo(item.CreatedAtUTC),
			equation(item),
			item.Status,
			item.Result.Deviation,
			humanize.Comma(int64(item.Generations)),
			item.PopulationSize,
			item.Seed,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" && fs.NArg() == 1 {
		*runID = fs.Arg(0)
	}
	if *runID == "" {
		return errors.New("show requires --run-id")
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	item, err := client.Run(ctx, *runID)
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s equation=%s status=%s gens=%s pop=%d seed=%d\n",
		item.RunID,
		equation(item),
		item.Status,
		humanize.Comma(int64(item.Generations)),
		item.PopulationSize,
		item.Seed,
	)
	fmt.Println(item.Result.String())
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "read diagnostics from the most recent run")
	limit := fs.Int("limit", 0, "show only the last N generations (0 shows all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 0 {
		return errors.New("limit must be >= 0")
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, diophant.DiagnosticsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%d mean=%.3f worst=%d distinct=%d\n",
			d.Generation,
			d.BestDeviation,
			d.MeanDeviation,
			d.WorstDeviation,
			d.DistinctGenotypes,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, diophant.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", summary.RunID, filepath.Clean(summary.Directory))
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := common.open(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *common.storeKind)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	addr := fs.String("addr", ":8080", "listen address")
	maxPopulation := fs.Int("max-pop", 10000, "largest population a request may ask for (0 disables)")
	maxGenerations := fs.Int("max-gens", 100000, "largest generation budget a request may ask for (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	client, logger, err := common.open(m)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: *addr,
		Handler: server.NewRouter(server.Config{
			Solver:         client,
			Logger:         logger,
			Gatherer:       reg,
			MaxPopulation:  *maxPopulation,
			MaxGenerations: *maxGenerations,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", *addr, "store", *common.storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func equation(item diophant.RunItem) string {
	return fmt.Sprintf("%d*x1+%d*x2+%d*x3+%d*x4=%d", item.A, item.B, item.C, item.D, item.Y)
}

func createdAgo(createdAtUTC string) string {
	created, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return strings.ReplaceAll(humanize.Time(created), " ", "_")
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: diophantctl <solve|benchmark|experiments|runs|show|diagnostics|export|reset|serve> [flags]", msg)
}

package model

import "fmt"

// GeneCount is the number of unknowns in the target equation.
const GeneCount = 4

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Coefficients describes a*x1 + b*x2 + c*x3 + d*x4 = y.
type Coefficients struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
	C int64 `json:"c"`
	D int64 `json:"d"`
	Y int64 `json:"y"`
}

func (c Coefficients) Validate() error {
	if c.A <= 0 || c.B <= 0 || c.C <= 0 || c.D <= 0 || c.Y <= 0 {
		return fmt.Errorf("coefficients and target must be > 0: a=%d b=%d c=%d d=%d y=%d", c.A, c.B, c.C, c.D, c.Y)
	}
	return nil
}

// Weights returns the left-hand side coefficients in gene order.
func (c Coefficients) Weights() [GeneCount]int64 {
	return [GeneCount]int64{c.A, c.B, c.C, c.D}
}

// Chromosome is one candidate assignment of (x1, x2, x3, x4).
type Chromosome [GeneCount]int64

func (ch Chromosome) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", ch[0], ch[1], ch[2], ch[3])
}

type SearchStatus string

const (
	StatusExactSolved     SearchStatus = "exact_solved"
	StatusBudgetExhausted SearchStatus = "budget_exhausted"
)

type GenerationDiagnostics struct {
	Generation        int     `json:"generation"`
	BestDeviation     int64   `json:"best_deviation"`
	MeanDeviation     float64 `json:"mean_deviation"`
	WorstDeviation    int64   `json:"worst_deviation"`
	DistinctGenotypes int     `json:"distinct_genotypes"`
}

// RunRecord is the persisted outcome of one solve.
type RunRecord struct {
	VersionedRecord
	ID               string       `json:"id"`
	CreatedAtUTC     string       `json:"created_at_utc"`
	Coefficients     Coefficients `json:"coefficients"`
	PopulationSize   int          `json:"population_size"`
	MaxGenerations   int          `json:"max_generations"`
	MutationRate     float64      `json:"mutation_rate"`
	Seed             int64        `json:"seed"`
	Workers          int          `json:"workers"`
	Status           SearchStatus `json:"status"`
	Generations      int          `json:"generations"`
	Solution         Chromosome   `json:"solution"`
	Deviation        int64        `json:"deviation"`
	BestByGeneration []int64      `json:"best_by_generation"`
	ElapsedMS        int64        `json:"elapsed_ms"`
}

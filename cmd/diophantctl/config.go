package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"diophant/internal/input"
	"diophant/pkg/diophant"
)

// solveConfig is a solve request before the coefficient text is validated.
type solveConfig struct {
	Fields [len(input.FieldNames)]string
	Req    diophant.SolveRequest
}

func loadSolveConfig(path string) (solveConfig, error) {
	var cfg solveConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	// Numbers stay as json.Number so large seeds and coefficients keep every digit.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	if dec.More() {
		return cfg, fmt.Errorf("decode config %s: unexpected data after top-level object", path)
	}

	for i, name := range input.FieldNames {
		if v, ok := asIntegerText(raw[name]); ok {
			cfg.Fields[i] = v
		}
	}
	if v, ok := asInt(raw["population_size"]); ok {
		cfg.Req.PopulationSize = v
	}
	if v, ok := asInt(raw["max_generations"]); ok {
		cfg.Req.MaxGenerations = v
	}
	if v, ok := asFloat64(raw["mutation_rate"]); ok {
		cfg.Req.MutationRate = v
	}
	if v, ok := asBool(raw["allow_non_positive"]); ok {
		cfg.Req.AllowNonPositive = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		cfg.Req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		cfg.Req.Workers = v
	}
	return cfg, nil
}

// overrideFromFlags applies only the flags the user set explicitly.
func overrideFromFlags(cfg *solveConfig, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "a":
			cfg.Fields[0] = v.(string)
		case "b":
			cfg.Fields[1] = v.(string)
		case "c":
			cfg.Fields[2] = v.(string)
		case "d":
			cfg.Fields[3] = v.(string)
		case "y":
			cfg.Fields[4] = v.(string)
		case "pop":
			cfg.Req.PopulationSize = v.(int)
		case "gens":
			cfg.Req.MaxGenerations = v.(int)
		case "mutation-rate":
			cfg.Req.MutationRate = v.(float64)
		case "allow-non-positive":
			cfg.Req.AllowNonPositive = v.(bool)
		case "seed":
			cfg.Req.Seed = v.(int64)
		case "workers":
			cfg.Req.Workers = v.(int)
		}
	}
}

func (cfg solveConfig) hasFields() bool {
	for _, f := range cfg.Fields {
		if f != "" {
			return true
		}
	}
	return false
}

// asIntegerText keeps non-integral JSON numbers as text so that field
// validation reports them instead of silently truncating.
func asIntegerText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		n, ok := asInt64(x)
		return int(n), ok
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

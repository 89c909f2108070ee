package prefetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/mvprefetch/prefetch/trace"
)

// Bundle holds the engine configuration, loadable from a YAML file.
// Nil pointer fields mean "not set in YAML"; the defaults apply.
// String fields use empty string for "not set".
type Bundle struct {
	Store   StoreConfig             `yaml:"store"`
	CostDB  string                  `yaml:"cost_db"`
	Catalog map[string]CatalogEntry `yaml:"catalog"`
	Policy  PolicySection           `yaml:"policy"`
	Rebuild RebuildSection          `yaml:"rebuild"`
	Trace   TraceSection            `yaml:"trace"`
}

// StoreConfig selects and configures the artifact store.
type StoreConfig struct {
	Driver string            `yaml:"driver"` // "postgres" (default) or "memory"
	DSN    string            `yaml:"dsn"`
	Memory MemoryStoreConfig `yaml:"memory"`
}

// MemoryStoreConfig configures the in-memory store used for dry runs.
type MemoryStoreConfig struct {
	RefreshLatency  *time.Duration           `yaml:"refresh_latency"`
	ExecuteLatency  *time.Duration           `yaml:"execute_latency"`
	HitLatency      *time.Duration           `yaml:"hit_latency"`
	ArtifactLatency map[string]time.Duration `yaml:"artifact_latency"`
	Fail            []string                 `yaml:"fail"`
}

// CatalogEntry describes one operation: the query behind it and the
// materialized view that serves it (empty when none does).
type CatalogEntry struct {
	Description string `yaml:"description"`
	Query       string `yaml:"query"`
	Artifact    string `yaml:"artifact"`
}

// PolicySection holds prefetch policy configuration.
type PolicySection struct {
	Name          string         `yaml:"name"`
	SafetyMargin  *time.Duration `yaml:"safety_margin"`
	MinConfidence *float64       `yaml:"min_confidence"`
}

// RebuildSection holds rebuild cost and timeout configuration.
type RebuildSection struct {
	FallbackCost           *time.Duration `yaml:"fallback_cost"`
	TimeoutFloor           *time.Duration `yaml:"timeout_floor"`
	TimeoutMultiplier      *float64       `yaml:"timeout_multiplier"`
	CalibrationParallelism *int           `yaml:"calibration_parallelism"`
}

// TraceSection holds decision tracing configuration.
type TraceSection struct {
	Level string `yaml:"level"`
}

// ValidStoreDrivers is the set of recognized artifact store drivers.
var ValidStoreDrivers = map[string]bool{"": true, "postgres": true, "memory": true}

// LoadBundle reads and parses a YAML configuration file.
// Unknown fields are rejected so typos surface as errors.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prefetch config: %w", err)
	}
	var bundle Bundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing prefetch config: %w", err)
	}
	return &bundle, nil
}

// Validate checks that all names and parameter ranges in the bundle are valid.
func (b *Bundle) Validate() error {
	if !ValidStoreDrivers[b.Store.Driver] {
		return fmt.Errorf("unknown store driver %q", b.Store.Driver)
	}
	if !IsValidPrefetchPolicy(b.Policy.Name) {
		return fmt.Errorf("unknown prefetch policy %q", b.Policy.Name)
	}
	if !trace.IsValidTraceLevel(b.Trace.Level) {
		return fmt.Errorf("unknown trace level %q", b.Trace.Level)
	}
	for op := range b.Catalog {
		if op == "" {
			return fmt.Errorf("catalog contains an empty operation id")
		}
	}
	// Parameter range validation
	if b.Policy.SafetyMargin != nil && *b.Policy.SafetyMargin < 0 {
		return fmt.Errorf("safety_margin must be non-negative, got %v", *b.Policy.SafetyMargin)
	}
	if b.Policy.MinConfidence != nil && (*b.Policy.MinConfidence < 0 || *b.Policy.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be in [0, 1], got %f", *b.Policy.MinConfidence)
	}
	if b.Rebuild.FallbackCost != nil && *b.Rebuild.FallbackCost < 0 {
		return fmt.Errorf("fallback_cost must be non-negative, got %v", *b.Rebuild.FallbackCost)
	}
	if b.Rebuild.TimeoutFloor != nil && *b.Rebuild.TimeoutFloor < 0 {
		return fmt.Errorf("timeout_floor must be non-negative, got %v", *b.Rebuild.TimeoutFloor)
	}
	if b.Rebuild.TimeoutMultiplier != nil && *b.Rebuild.TimeoutMultiplier < 0 {
		return fmt.Errorf("timeout_multiplier must be non-negative, got %f", *b.Rebuild.TimeoutMultiplier)
	}
	if cfg := b.OrchestratorConfig(); cfg.TimeoutFloor == 0 && cfg.TimeoutMultiplier > 0 {
		return fmt.Errorf("timeout_floor must be positive when timeout_multiplier is non-zero")
	}
	if b.Rebuild.CalibrationParallelism != nil && *b.Rebuild.CalibrationParallelism < 1 {
		return fmt.Errorf("calibration_parallelism must be at least 1, got %d", *b.Rebuild.CalibrationParallelism)
	}
	return nil
}

// PolicyConfig returns DefaultPolicyConfig with the bundle's overrides applied.
func (b *Bundle) PolicyConfig() PolicyConfig {
	cfg := DefaultPolicyConfig()
	if b.Policy.SafetyMargin != nil {
		cfg.SafetyMargin = *b.Policy.SafetyMargin
	}
	if b.Policy.MinConfidence != nil {
		cfg.MinConfidence = *b.Policy.MinConfidence
	}
	return cfg
}

// OrchestratorConfig returns DefaultOrchestratorConfig with the bundle's overrides applied.
func (b *Bundle) OrchestratorConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	if b.Rebuild.FallbackCost != nil {
		cfg.FallbackCost = *b.Rebuild.FallbackCost
	}
	if b.Rebuild.TimeoutFloor != nil {
		cfg.TimeoutFloor = *b.Rebuild.TimeoutFloor
	}
	if b.Rebuild.TimeoutMultiplier != nil {
		cfg.TimeoutMultiplier = *b.Rebuild.TimeoutMultiplier
	}
	if b.Rebuild.CalibrationParallelism != nil {
		cfg.CalibrationParallelism = *b.Rebuild.CalibrationParallelism
	}
	return cfg
}

// Registry builds the operation → artifact registry from the catalog.
func (b *Bundle) Registry() *ArtifactRegistry {
	mapping := make(map[OperationID]string, len(b.Catalog))
	for op, entry := range b.Catalog {
		mapping[OperationID(op)] = entry.Artifact
	}
	return NewArtifactRegistry(mapping)
}

// Queries returns the query text of every catalog operation that has one.
func (b *Bundle) Queries() map[OperationID]string {
	queries := make(map[OperationID]string, len(b.Catalog))
	for op, entry := range b.Catalog {
		if entry.Query != "" {
			queries[OperationID(op)] = entry.Query
		}
	}
	return queries
}

// Operations returns the catalog operation ids, sorted.
func (b *Bundle) Operations() []OperationID {
	ops := make([]OperationID, 0, len(b.Catalog))
	for op := range b.Catalog {
		ops = append(ops, OperationID(op))
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// TraceLevel returns the configured trace level, defaulting to none.
func (b *Bundle) TraceLevel() trace.TraceLevel {
	if b.Trace.Level == "" {
		return trace.TraceLevelNone
	}
	return trace.TraceLevel(b.Trace.Level)
}

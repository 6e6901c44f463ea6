// Package config provides the unified configuration for the Petrel scan layer.
//
// ScanConfig is the single structure the planner hands to providers and the
// scan executor. It is organized into logical sections:
//   - Parallelism: pipeline degree of parallelism and tablet-internal splitting
//   - Memory: admission-control budgets for concurrently open data sources
//   - Limits: batch sizing and read limits
//
// Example usage:
//
//	cfg := config.DefaultScanConfig()
//	cfg.Parallelism.PipelineDop = 8
//	cfg.Parallelism.TabletInternalParallelMode = config.TabletInternalParallelAuto
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/petreldb/petrel/pkg/errors"
)

// TabletInternalParallelMode selects how a splittable backend subdivides a
// scan range when both physical and logical (row-boundary) splitting are
// legal. The tie-break between the two is policy, not something derivable
// from the backend's capability flags alone, so it is an explicit enum.
type TabletInternalParallelMode string

const (
	// TabletInternalParallelAuto splits physically when the backend supports
	// it, otherwise falls back to logical row-boundary splitting.
	TabletInternalParallelAuto TabletInternalParallelMode = "auto"
	// TabletInternalParallelForceSplit requires physical splitting; ranges of
	// backends without physical splitting stay whole.
	TabletInternalParallelForceSplit TabletInternalParallelMode = "force_split"
	// TabletInternalParallelForceRowSplit always splits logically by row
	// boundaries even when physical splitting is available.
	TabletInternalParallelForceRowSplit TabletInternalParallelMode = "force_row_split"
)

// Valid reports whether the mode is a known enum member.
func (m TabletInternalParallelMode) Valid() bool {
	switch m {
	case TabletInternalParallelAuto, TabletInternalParallelForceSplit, TabletInternalParallelForceRowSplit:
		return true
	}
	return false
}

// ParallelismConfig controls scan splitting and concurrency.
type ParallelismConfig struct {
	// PipelineDop is the number of pipeline drivers available to one scan.
	PipelineDop int `yaml:"pipeline_dop" json:"pipeline_dop"`
	// EnableTabletInternalParallel allows subdividing splittable scan ranges.
	EnableTabletInternalParallel bool `yaml:"enable_tablet_internal_parallel" json:"enable_tablet_internal_parallel"`
	// TabletInternalParallelMode picks the splitting policy for backends
	// where both physical and logical splitting are legal.
	TabletInternalParallelMode TabletInternalParallelMode `yaml:"tablet_internal_parallel_mode" json:"tablet_internal_parallel_mode"`
	// MinRowsPerMorsel is the smallest row count a split morsel may carry.
	// Splitting never subdivides below this, so tiny ranges stay whole.
	MinRowsPerMorsel int64 `yaml:"min_rows_per_morsel" json:"min_rows_per_morsel"`
}

// MemoryConfig controls the admission-control budget for open data sources.
type MemoryConfig struct {
	// MinDataSourceMemBytes overrides the lower budget bound when > 0.
	MinDataSourceMemBytes int64 `yaml:"min_data_source_mem_bytes" json:"min_data_source_mem_bytes"`
	// MaxDataSourceMemBytes overrides the upper budget bound when > 0.
	MaxDataSourceMemBytes int64 `yaml:"max_data_source_mem_bytes" json:"max_data_source_mem_bytes"`
	// ScanMemLimitBytes caps the total reservation for one scan; 0 derives it
	// from available system memory at startup.
	ScanMemLimitBytes int64 `yaml:"scan_mem_limit_bytes" json:"scan_mem_limit_bytes"`
}

// LimitsConfig controls batch sizing and read limits.
type LimitsConfig struct {
	// ChunkSize is the row capacity of one columnar batch.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// GetNextTimeout bounds a demo/CLI scan; zero means no timeout
	// (cancellation stays cooperative in the engine proper).
	GetNextTimeout time.Duration `yaml:"get_next_timeout" json:"get_next_timeout"`
}

// ScanConfig is the configuration handed to DataSourceProviders and the scan
// executor for one query fragment.
type ScanConfig struct {
	Parallelism ParallelismConfig `yaml:"parallelism" json:"parallelism"`
	Memory      MemoryConfig      `yaml:"memory" json:"memory"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
}

const (
	// DefaultChunkSize is the default rows-per-chunk for scans.
	DefaultChunkSize = 4096
	// DefaultMinRowsPerMorsel keeps splitting from producing morsels whose
	// fixed per-morsel overhead dwarfs their useful work.
	DefaultMinRowsPerMorsel = 64 * 1024
)

// DefaultScanConfig returns a ScanConfig with production defaults. The total
// scan memory limit is derived from available system memory when it can be
// probed, otherwise from a fixed fraction of a conservative guess.
func DefaultScanConfig() *ScanConfig {
	cfg := &ScanConfig{
		Parallelism: ParallelismConfig{
			PipelineDop:                  runtime.NumCPU(),
			EnableTabletInternalParallel: true,
			TabletInternalParallelMode:   TabletInternalParallelAuto,
			MinRowsPerMorsel:             DefaultMinRowsPerMorsel,
		},
		Limits: LimitsConfig{
			ChunkSize: DefaultChunkSize,
		},
	}
	cfg.Memory.ScanMemLimitBytes = deriveScanMemLimit()
	return cfg
}

// deriveScanMemLimit reserves a quarter of available system memory for scans.
func deriveScanMemLimit() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return 2 << 30 // 2GB fallback when the platform cannot be probed
	}
	return int64(vm.Available / 4)
}

// Validate checks the configuration for consistency.
func (c *ScanConfig) Validate() error {
	if c.Parallelism.PipelineDop <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "pipeline_dop must be positive, got %d", c.Parallelism.PipelineDop)
	}
	if !c.Parallelism.TabletInternalParallelMode.Valid() {
		return errors.Newf(errors.ErrorTypeConfig, "unknown tablet_internal_parallel_mode %q", c.Parallelism.TabletInternalParallelMode)
	}
	if c.Parallelism.MinRowsPerMorsel <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "min_rows_per_morsel must be positive, got %d", c.Parallelism.MinRowsPerMorsel)
	}
	if c.Limits.ChunkSize <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "chunk_size must be positive, got %d", c.Limits.ChunkSize)
	}
	if c.Memory.MinDataSourceMemBytes < 0 || c.Memory.MaxDataSourceMemBytes < 0 {
		return errors.New(errors.ErrorTypeConfig, "data source memory bounds must be non-negative")
	}
	if c.Memory.MaxDataSourceMemBytes > 0 && c.Memory.MinDataSourceMemBytes > c.Memory.MaxDataSourceMemBytes {
		return errors.New(errors.ErrorTypeConfig, "min_data_source_mem_bytes exceeds max_data_source_mem_bytes")
	}
	return nil
}

// Package config builds the typed Config runtime.Init consumes from
// environment variables (plus an optional YAML override file), reading each
// knob once instead of the ad hoc os.Getenv calls scattered through a
// smaller program. Env vars override the file, and the result is built
// once into a struct before any worker or scheduling context exists;
// cmd/taskrunner only chooses the file path (--config).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Calibrate selects pkg/perfmodel's measurement policy.
type Calibrate string

const (
	CalibrateOff   Calibrate = ""
	CalibrateOn    Calibrate = "1"
	CalibrateForce Calibrate = "force"
)

// Config is the fully-resolved runtime configuration, built once at
// runtime.Init and threaded down instead of re-read ad hoc.
type Config struct {
	// LimitCPUMem caps the host RAM node's allocator, bytes. 0 means
	// uncapped, the ArenaAllocator(0) convention.
	LimitCPUMem uint64
	// LimitCPUNUMAMem caps individual NUMA domains by index, for
	// multi-NUMA arena accounting; empty on the single-NUMA CPU path this
	// rendition ships.
	LimitCPUNUMAMem map[int]uint64

	Sched string // registered pkg/sched policy name, e.g. "eager-central", "tree"

	NCPU    int // worker goroutines of memnode.KindCPU to start
	NCUDA   int // reserved: no CUDA worker implementation ships, must be 0
	NOpenCL int // reserved: no OpenCL worker implementation ships, must be 0

	Calibrate Calibrate
}

// Default returns the configuration implied when no env vars are set: one
// CPU worker, the eager-central policy, no calibration.
func Default() *Config {
	return &Config{
		LimitCPUNUMAMem: make(map[int]uint64),
		Sched:           "eager-central",
		NCPU:            1,
		Calibrate:       CalibrateOff,
	}
}

// FromEnv builds a Config from the process environment, applying file
// overrides from yamlPath first if it is non-empty and exists. Env vars
// always win over the file.
func FromEnv(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := applyYAMLFile(cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv("LIMIT_CPU_MEM"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: LIMIT_CPU_MEM: %w", err)
		}
		cfg.LimitCPUMem = n
	}

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "LIMIT_CPU_NUMA_") || !strings.HasSuffix(k, "_MEM") {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(k, "LIMIT_CPU_NUMA_"), "_MEM")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", k, err)
		}
		cfg.LimitCPUNUMAMem[idx] = n
	}

	if v, ok := os.LookupEnv("SCHED"); ok && v != "" {
		cfg.Sched = v
	}
	if v, ok := os.LookupEnv("NCPU"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: NCPU: %w", err)
		}
		cfg.NCPU = n
	}
	if v, ok := os.LookupEnv("NCUDA"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: NCUDA: %w", err)
		}
		cfg.NCUDA = n
	}
	if v, ok := os.LookupEnv("NOPENCL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: NOPENCL: %w", err)
		}
		cfg.NOpenCL = n
	}
	if v, ok := os.LookupEnv("CALIBRATE"); ok {
		cfg.Calibrate = Calibrate(v)
	}

	if cfg.NCUDA != 0 || cfg.NOpenCL != 0 {
		return nil, fmt.Errorf("config: NCUDA/NOPENCL must be 0, no accelerator worker implementation ships")
	}
	return cfg, nil
}

// yamlOverride mirrors Config's env-settable fields for an optional
// taskrunner.yaml override file; unset fields leave Default()'s values in
// place rather than zeroing them out.
type yamlOverride struct {
	LimitCPUMem     *uint64        `yaml:"limit_cpu_mem"`
	LimitCPUNUMAMem map[int]uint64 `yaml:"limit_cpu_numa_mem"`
	Sched           *string        `yaml:"sched"`
	NCPU            *int           `yaml:"ncpu"`
	Calibrate       *string        `yaml:"calibrate"`
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var ov yamlOverride
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if ov.LimitCPUMem != nil {
		cfg.LimitCPUMem = *ov.LimitCPUMem
	}
	for idx, n := range ov.LimitCPUNUMAMem {
		cfg.LimitCPUNUMAMem[idx] = n
	}
	if ov.Sched != nil {
		cfg.Sched = *ov.Sched
	}
	if ov.NCPU != nil {
		cfg.NCPU = *ov.NCPU
	}
	if ov.Calibrate != nil {
		cfg.Calibrate = Calibrate(*ov.Calibrate)
	}
	return nil
}

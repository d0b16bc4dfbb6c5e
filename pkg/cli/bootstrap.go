// Package cli holds the process bootstrap shared by cmd/taskrunner's
// subcommands: logging setup and a config.FromEnv-to-runtime.Init wiring
// helper.
package cli

import (
	"fmt"

	"github.com/cuemby/taskrunner/pkg/config"
	"github.com/cuemby/taskrunner/pkg/log"
	"github.com/cuemby/taskrunner/pkg/runtime"
)

// InitLogging configures the process-wide logger: console output by
// default, JSON when requested.
func InitLogging(level string, jsonOutput bool) {
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}

// StartRuntime builds a Config from the environment (plus yamlPath if
// non-empty) and brings up a Runtime over it. Callers must defer
// rt.Shutdown().
func StartRuntime(yamlPath, dataDir string) (*runtime.Runtime, error) {
	cfg, err := config.FromEnv(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("cli: load config: %w", err)
	}
	rt, err := runtime.Init(cfg, dataDir)
	if err != nil {
		return nil, fmt.Errorf("cli: start runtime: %w", err)
	}
	return rt, nil
}

/*
Package log provides structured logging for the runtime using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithWorker("cpu-3")                      │          │
	│  │  - WithTaskID("task-def456")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "scheduler",                │          │
	│  │    "time": "2026-07-30T10:30:00Z",          │          │
	│  │    "message": "task scheduled"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF task scheduled component=scheduler │      │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every package in the process
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithWorker: Add worker id context
  - WithHandle: Add data handle id context
  - WithTaskID: Add task id context
  - WithContext: Add scheduling context name

# Usage

Initializing the Logger:

	import "github.com/cuemby/taskrunner/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("runtime started")
	log.Debug("checking worker status")
	log.Warn("no ready tasks for 5s")
	log.Error("codelet failed")
	log.Fatal("cannot start without a memory node") // exits process

Structured Logging:

	log.Logger.Info().
		Str("codelet", "vectorscal.scale").
		Int("nbuffers", 1).
		Msg("task submitted")

Component Loggers:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("starting push loop")
	schedulerLog.Debug().Str("task_id", "t-123").Msg("pushing ready task")

	workerLog := log.WithComponent("worker").
		With().Int("worker_id", 2).
		Str("task_id", "t-123").Logger()
	workerLog.Info().Msg("executing codelet")

# Integration Points

This package is used by:

  - pkg/runtime: logs component startup and shutdown
  - pkg/worker: logs task execution and fetch/writeback
  - pkg/rpc: logs gateway requests and errors
  - pkg/cli: initializes the logger for cmd/taskrunner

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at process start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err) instead of string concatenation
  - Enables log aggregation and querying

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Use Debug level in production
  - Log in tight loops (worker drivers especially)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log

// Package logging configures the global zerolog logger for the agent and
// its host: human-readable console output plus, when the orchestrator asks
// for it, a per-run JSON log file inside the assigned log folder.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the logging setup knobs.
type Config struct {
	Level   string
	Console bool
}

var (
	mu      sync.Mutex
	console io.Writer
	logFile *os.File
)

// Init sets the global log level and the console writer. Call once at
// process start, before the engine is constructed.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	mu.Lock()
	defer mu.Unlock()

	console = nil
	if cfg.Console {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}
	rebuildLocked()
}

// AttachFile opens a per-run log file in dir and routes log output to it in
// addition to the console. An unusable dir falls back to the working
// directory. A second call while a file is already open is a no-op.
func AttachFile(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return nil
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			dir = ""
		}
	}

	name := fmt.Sprintf("lifeline_%d.log", time.Now().Unix())
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	logFile = f
	rebuildLocked()
	return nil
}

// Close closes the log file, if one was attached.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return
	}
	logFile.Close()
	logFile = nil
	rebuildLocked()
}

func rebuildLocked() {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "lifeline").
		Logger()
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

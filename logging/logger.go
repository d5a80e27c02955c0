package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/pharmastock/config"
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	logFiles  = make(map[string]*os.File)
	loggersMu sync.Mutex

	// settings is the configuration new loggers are built from. It is loaded
	// lazily from pharmastock.yml and replaced by Reconfigure.
	settings       *settingsSnapshot
	loadConfigOnce sync.Once
)

type settingsSnapshot struct {
	log        Config
	production bool
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	loadConfigOnce.Do(func() {
		if settings == nil {
			settings = snapshotFromConfig(loadConfig())
		}
	})

	logger := logrus.New()
	configure(logger, component, settings)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Reconfigure re-applies level, format and sinks to every logger created so
// far, and to loggers created later, from a freshly loaded configuration.
func Reconfigure(cfg *config.Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	loadConfigOnce.Do(func() {})
	settings = snapshotFromConfig(cfg)
	for component, entry := range loggers {
		configure(entry.Logger, component, settings)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		logrus.Warnf("Failed to load configuration for logging: %v", err)
		return nil
	}
	return cfg
}

func snapshotFromConfig(cfg *config.Config) *settingsSnapshot {
	snap := &settingsSnapshot{}
	if cfg == nil {
		return snap
	}
	snap.production = cfg.Production
	// Use UnmarshalExtension to safely decode the logging part
	if err := cfg.UnmarshalExtension("logging", &snap.log); err != nil {
		logrus.Warnf("Failed to parse 'logging' config: %v", err)
	}
	return snap
}

// ResolveLevel returns the effective level: PHARMASTOCK_LOG_LEVEL, then the
// configured level, then info. Production mode never goes below warn.
func ResolveLevel(logCfg Config, production bool) logrus.Level {
	levelStr := "info"
	if env := os.Getenv("PHARMASTOCK_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	if production && level > logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	return level
}

func configure(logger *logrus.Logger, component string, snap *settingsSnapshot) {
	logCfg := snap.log

	logger.SetLevel(ResolveLevel(logCfg, snap.production))
	logger.SetReportCaller(os.Getenv("PHARMASTOCK_LOG_CALLER") == "true" || logCfg.ReportCaller)

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer

	previous := logFiles[component]
	delete(logFiles, component)
	defer func() {
		if previous != nil {
			previous.Close()
		}
	}()

	if !logCfg.File.Disabled {
		logFilePath := LogFilePath(component, logCfg, time.Now())
		if logFilePath != "" {
			if file, err := openLogFile(logFilePath); err == nil {
				writers = append(writers, file)
				logFiles[component] = file
			} else if logCfg.File.Path != "" {
				// Only warn if explicitly configured
				logger.Warnf("Failed to open log file %s: %v", logFilePath, err)
			}
		}
	}

	if shouldLogToStderr(logCfg, logger.GetLevel()) {
		writers = append(writers, GetGlobalOutput())
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
}

// LogFilePath returns the file a component logs to on the given day.
func LogFilePath(component string, logCfg Config, now time.Time) string {
	if logCfg.File.Path != "" {
		return expandPath(logCfg.File.Path)
	}
	dir := paths.LogsDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, now.Format("2006-01-02")))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func shouldLogToStderr(logCfg Config, level logrus.Level) bool {
	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}

	switch stderrMode {
	case "always":
		return true
	case "never":
		return false
	default:
		// "auto": log to stderr if debug is enabled, or if not in an interactive terminal
		isDebug := level >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return isDebug || !isInteractive
	}
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

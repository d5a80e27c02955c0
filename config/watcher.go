package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the configuration when any of its files change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	startDir string
	watched  map[string]bool
	debounce time.Duration
	onChange func(*Config, error)
	logger   *logrus.Entry

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the project directory resolved from startDir and the
// global config directory. onChange receives the freshly loaded configuration,
// or the load error, once changes have settled for debounce.
func NewWatcher(startDir string, debounce time.Duration, logger *logrus.Entry, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	dirs := []string{startDir}
	if projectPath, err := FindConfigFile(startDir); err == nil {
		dirs[0] = filepath.Dir(projectPath)
	}
	if globalDir := paths.ConfigDir(); globalDir != "" {
		dirs = append(dirs, globalDir)
	}

	watched := make(map[string]bool)
	for _, dir := range dirs {
		if watched[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			// The global directory usually doesn't exist.
			logger.WithError(err).WithField("dir", dir).Debug("Not watching config directory")
			continue
		}
		watched[dir] = true
	}

	return &Watcher{
		watcher:  fsw,
		startDir: startDir,
		watched:  watched,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.WithField("file", event.Name).Debugf("Config change detected: %v", event.Op)
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")

		case <-ctx.Done():
			w.stopTimer()
			return
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.startDir)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to reload configuration")
	} else {
		w.logger.Info("Configuration reloaded")
	}
	if w.onChange != nil {
		w.onChange(cfg, err)
	}
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	if base == ".env" {
		return true
	}
	for _, name := range configNames {
		if base == name {
			return true
		}
	}
	for _, name := range overrideNames {
		if base == name {
			return true
		}
	}
	return false
}

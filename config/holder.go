// Package config provides configuration loading and hot reload.
package config

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
)

// SettleDelay is how long the file watcher waits for a burst of editor
// events to end before reloading.
const SettleDelay = 100 * time.Millisecond

// Holder keeps the current configuration and swaps it when the file
// changes or the process receives SIGHUP.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	digest   []byte
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onError  []func(error)

	reloadMu sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		path:   absPath,
		logger: logger.With().Str("component", "config").Logger(),
		stopCh: make(chan struct{}),
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	h.config, h.digest = cfg, fingerprint(data)
	return h, nil
}

func fingerprint(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the absolute path of the configuration file.
func (h *Holder) Path() string {
	return h.path
}

// OnChange registers fn to receive every configuration that replaces the
// current one.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers fn to receive failed reloads.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Reload reads the file again. A file whose bytes have not changed is a
// no-op; an invalid file leaves the current configuration in place.
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	data, err := os.ReadFile(h.path)
	if err != nil {
		return h.fail(fmt.Errorf("reload config: %w", err))
	}
	digest := fingerprint(data)

	h.mu.RLock()
	same := bytes.Equal(digest, h.digest)
	h.mu.RUnlock()
	if same {
		h.logger.Debug().Str("path", h.path).Msg("configuration unchanged")
		return nil
	}

	next, err := Parse(data)
	if err != nil {
		return h.fail(fmt.Errorf("reload config: %w", err))
	}

	h.mu.Lock()
	prev := h.config
	h.config, h.digest = next, digest
	listeners := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(prev, next)
	for _, fn := range listeners {
		fn(next)
	}
	h.logger.Info().Str("path", h.path).Msg("configuration reloaded")
	return nil
}

func (h *Holder) fail(err error) error {
	h.logger.Error().Err(err).Msg("keeping previous configuration")
	h.mu.RLock()
	listeners := append([]func(error){}, h.onError...)
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
	return err
}

// WatchFile reloads whenever the file is written or replaced. The parent
// directory is watched so rename-over saves are seen.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop()
	h.logger.Debug().Str("path", h.path).Msg("watching configuration file")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("SIGHUP")
				h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	name := filepath.Base(h.path)
	settle := time.NewTimer(SettleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.logger.Debug().Str("op", ev.Op.String()).Msg("configuration file event")
			settle.Reset(SettleDelay)

		case <-settle.C:
			h.Reload()

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("configuration watcher")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(prev, next *Config) {
	if prev.Logging.Level != next.Logging.Level {
		// applies on restart
		h.logger.Warn().
			Str("running", prev.Logging.Level).
			Str("configured", next.Logging.Level).
			Msg("log level change ignored")
	}
	if prev.Output.Dir != next.Output.Dir || prev.Output.Package != next.Output.Package {
		h.logger.Info().
			Str("dir", next.Output.Dir).
			Str("package", next.Output.Package).
			Msg("output location changed")
	}
	if prev.Generation.StreamingBodies != next.Generation.StreamingBodies {
		h.logger.Info().
			Str("from", prev.Generation.StreamingBodies).
			Str("to", next.Generation.StreamingBodies).
			Msg("streaming bodies changed")
	}
}

// ReloadableFields lists the settings a reload applies to the next build.
func ReloadableFields() []string {
	return []string{
		"output.dir",
		"output.package",
		"runtime.conversion_module",
		"runtime.base_service",
		"runtime.pb2_package",
		"generation.streaming_bodies",
		"generation.strict_symbols",
		"generation.sort_imports",
		"generation.workers",
		"metrics.textfile",
	}
}

// NonReloadableFields lists the settings that need a restart.
func NonReloadableFields() []string {
	return []string{
		"source.dir", // the watcher keeps its root
		"cache.enabled",
		"cache.dsn",
		"logging.level",
		"logging.format",
		"serve.addr",
	}
}

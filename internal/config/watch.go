package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the config file whenever it changes on disk.
// Editors often replace the file rather than write it in place, so the
// containing directory is watched and events are filtered by name.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan Config
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:    abs,
		watcher: w,
		updates: make(chan Config, 1),
	}, nil
}

// Updates delivers each successfully reloaded and validated config.
// Only the most recent unread config is kept.
func (w *Watcher) Updates() <-chan Config {
	return w.updates
}

// Run processes filesystem events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("config reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("config reload rejected: %v", err)
		return
	}

	// Replace any config the consumer has not picked up yet.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

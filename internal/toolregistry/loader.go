package toolregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// toolFile is the on-disk JSON representation a tool schema directory
// entry decodes into before being converted into a ToolSchema.
type toolFile struct {
	Name           string                  `json:"name"`
	Description    string                  `json:"description"`
	Parameters     map[string]*ParamSchema `json:"parameters"`
	RequiredParams []string                `json:"required"`
	RequiresAuth   bool                    `json:"requiresAuth"`
	RequiredScopes []string                `json:"requiredScopes"`
	TimeoutMs      int                     `json:"timeoutMs"`
}

func (t *toolFile) toSchema() *ToolSchema {
	return &ToolSchema{
		Name:           t.Name,
		Description:    t.Description,
		Parameters:     t.Parameters,
		RequiredParams: t.RequiredParams,
		RequiresAuth:   t.RequiresAuth,
		RequiredScopes: t.RequiredScopes,
		Timeout:        time.Duration(t.TimeoutMs) * time.Millisecond,
	}
}

// LoadDir registers every *.json file in dir as a tool schema.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("toolregistry: read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := r.loadFile(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("toolregistry: read %s: %w", path, err)
	}
	var tf toolFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("toolregistry: parse %s: %w", path, err)
	}
	return r.Register(tf.toSchema())
}

// DirWatcher watches a tool schema directory and reloads changed files
// into the registry as they're written, so operators can add or update
// tools without a process restart.
type DirWatcher struct {
	dir      string
	registry *Registry
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	done     chan struct{}
}

// WatchDir starts watching dir for *.json changes, loading its current
// contents into r immediately. Call Close to stop watching.
func WatchDir(dir string, r *Registry, log *zap.Logger) (*DirWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := r.LoadDir(dir); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("toolregistry: new watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("toolregistry: watch %s: %w", dir, err)
	}

	dw := &DirWatcher{
		dir:      dir,
		registry: r,
		watcher:  w,
		log:      log.Named("toolregistry.watcher"),
		done:     make(chan struct{}),
	}
	go dw.run()
	return dw, nil
}

func (d *DirWatcher) run() {
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := d.registry.loadFile(event.Name); err != nil {
				d.log.Warn("tool schema reload failed", zap.String("file", event.Name), zap.Error(err))
			} else {
				d.log.Info("tool schema reloaded", zap.String("file", event.Name))
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("tool schema watcher error", zap.Error(err))
		case <-d.done:
			return
		}
	}
}

// Close stops watching and releases the underlying OS resources.
func (d *DirWatcher) Close() error {
	close(d.done)
	return d.watcher.Close()
}

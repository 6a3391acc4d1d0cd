package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/sheetkit/internal/core"
)

// LoadResult summarizes one pass over the template directory.
type LoadResult struct {
	Files     int // Template files found
	Templates int // Definitions registered from those files
	Failed    int // Files left at their previous definitions
	Removed   int // Definitions dropped because their file is gone
}

// Loader keeps a registry in step with a directory of template files. Each
// file is its own source, so a broken file only affects its own templates.
type Loader struct {
	dir      string
	registry *core.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	loaded map[string]bool
}

// NewLoader returns a loader for dir that writes into reg.
func NewLoader(dir string, reg *core.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:      dir,
		registry: reg,
		logger:   logger,
		loaded:   make(map[string]bool),
	}
}

// Dir returns the watched directory.
func (l *Loader) Dir() string { return l.dir }

// Load reads every template file under the directory. A file that fails to
// parse or register keeps whatever it registered before; the failures are
// returned joined together.
func (l *Loader) Load() (LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result LoadResult
	files, err := templateFiles(l.dir)
	if err != nil {
		return result, fmt.Errorf("template file directory %s: %w", l.dir, err)
	}

	var errs []error
	present := make(map[string]bool, len(files))
	for _, path := range files {
		present[path] = true
		result.Files++

		defs, err := ParseFile(path)
		if err == nil {
			err = l.registry.ReplaceSource(path, defs)
		}
		if err != nil {
			result.Failed++
			errs = append(errs, err)
			l.logger.Warn("template file rejected", "path", path, "error", err)
			continue
		}
		l.loaded[path] = true
		result.Templates += len(defs)
	}

	for path := range l.loaded {
		if present[path] {
			continue
		}
		n := l.registry.RemoveSource(path)
		result.Removed += n
		delete(l.loaded, path)
		l.logger.Info("template file removed", "path", path, "templates", n)
	}

	l.logger.Info("templates loaded",
		"dir", l.dir,
		"files", result.Files,
		"templates", result.Templates,
		"failed", result.Failed,
		"removed", result.Removed,
	)
	return result, errors.Join(errs...)
}

// Reload is Load for use as a watcher callback.
func (l *Loader) Reload() error {
	_, err := l.Load()
	return err
}

func templateFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if hidden(path) && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() && d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		if hasExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func hasExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

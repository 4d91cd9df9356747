package shader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cogentcore.org/core/base/errors"
	"github.com/fsnotify/fsnotify"
)

const (
	vertexSuffix   = ".vert.wgsl"
	fragmentSuffix = ".frag.wgsl"
)

// library is the implementation of the Library interface.
type library struct {
	mu        sync.RWMutex
	dir       string
	templates map[string]*Template
	onReload  func(*Template)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Library loads shader templates from a directory of `<name>.vert.wgsl` / `<name>.frag.wgsl`
// pairs and optionally reloads them when the files change.
type Library interface {
	// Load reads every complete stage pair in the directory, replacing templates whose sources changed.
	//
	// Returns:
	//   - error: the joined read errors and incomplete pairs, or nil
	Load() error

	// Template returns the current template for name. A reloaded template is a new pointer.
	//
	// Parameters:
	//   - name: the template name (file name without the stage suffix)
	//
	// Returns:
	//   - *Template: the template, or nil if unknown
	//   - bool: true if the template exists
	Template(name string) (*Template, bool)

	// Names returns the names of all loaded templates in sorted order.
	//
	// Returns:
	//   - []string: template names
	Names() []string

	// Watch starts watching the directory and reloads a template whenever one of its stage files
	// is written, created or renamed. Calling Watch twice is a no-op.
	//
	// Returns:
	//   - error: an error if the watcher cannot be created
	Watch() error

	// Close stops watching. The loaded templates stay available.
	//
	// Returns:
	//   - error: the watcher close error, if any
	Close() error
}

var _ Library = &library{}

// NewLibrary creates a Library over dir. Nothing is read until Load is called.
//
// Parameters:
//   - dir: the directory holding the stage files
//   - options: optional LibraryBuilderOption functions
//
// Returns:
//   - Library: the new library
func NewLibrary(dir string, options ...LibraryBuilderOption) Library {
	l := &library{
		dir:       dir,
		templates: make(map[string]*Template),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *library) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("shader library: %w", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if name, ok := templateName(e.Name()); ok && !e.IsDir() {
			names[name] = true
		}
	}

	var errs []error
	for name := range names {
		if _, err := l.reload(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reload reads the stage pair of name and swaps in a new Template when the sources differ.
func (l *library) reload(name string) (*Template, error) {
	vert, err := os.ReadFile(filepath.Join(l.dir, name+vertexSuffix))
	if err != nil {
		return nil, fmt.Errorf("shader library: template %q: %w", name, err)
	}
	frag, err := os.ReadFile(filepath.Join(l.dir, name+fragmentSuffix))
	if err != nil {
		return nil, fmt.Errorf("shader library: template %q: %w", name, err)
	}
	next := NewTemplate(name, string(vert), string(frag))

	l.mu.Lock()
	prev := l.templates[name]
	if prev.Equal(next) {
		l.mu.Unlock()
		return prev, nil
	}
	l.templates[name] = next
	l.mu.Unlock()

	if prev != nil {
		slog.Info("shader template reloaded", "template", name)
		if l.onReload != nil {
			l.onReload(next)
		}
	}
	return next, nil
}

func (l *library) Template(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[name]
	return t, ok
}

func (l *library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.templates))
	for n := range l.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *library) Watch() error {
	if l.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("shader library: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("shader library: %w", err)
	}
	l.watcher = w
	l.done = make(chan struct{})

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				name, ok := templateName(filepath.Base(event.Name))
				if !ok {
					continue
				}
				// a pair with one stage still missing is picked up by a later event
				if _, err := l.reload(name); err != nil {
					slog.Debug("shader template reload deferred", "template", name, "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				errors.Log(err)
			}
		}
	}()
	return nil
}

func (l *library) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	err := l.watcher.Close()
	l.wg.Wait()
	l.watcher = nil
	return err
}

// templateName returns the template name of a stage file name.
func templateName(file string) (string, bool) {
	if name, ok := strings.CutSuffix(file, vertexSuffix); ok && name != "" {
		return name, true
	}
	if name, ok := strings.CutSuffix(file, fragmentSuffix); ok && name != "" {
		return name, true
	}
	return "", false
}

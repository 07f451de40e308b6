// Package store provides the persisted registry of script definitions.
// The whole registry is one JSON array on disk; it is read and written
// wholesale.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rashpile/scriptmate/pkg/script"
)

var (
	// ErrDuplicateID is returned when adding or renaming to an id already in use.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when no definition has the requested id.
	ErrNotFound = errors.New("definition not found")

	// ErrStorageUnavailable wraps read and write failures of the backing file.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Registry owns the authoritative list of definitions.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	path   string
	defs   []script.Definition
	digest [sha256.Size]byte // content of the last read or write

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for load and save diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Open creates a registry backed by path and loads it.
// If path is empty, the registry is memory-only (no persistence).
// The registry is always usable; a non-nil error is a load warning and
// the registry starts empty.
func Open(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:   path,
		defs:   []script.Definition{},
		subs:   make(map[int]func()),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, r.Load()
}

// Path returns the backing file location.
func (r *Registry) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// SetPath switches the backing file and reloads from it.
func (r *Registry) SetPath(path string) error {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()

	r.logger.Info("commands path changed", "path", path)
	return r.Load()
}

// Load replaces the in-memory list with the file content. A missing or blank
// file is an empty registry. Unreadable or malformed content also leaves the
// registry empty and is reported as the returned error. Subscribers are
// notified in every case.
func (r *Registry) Load() error {
	r.mu.Lock()
	defs, digest, err := readDocument(r.path)
	r.defs = defs
	r.digest = digest
	path := r.path
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("commands file not loaded, starting empty", "path", path, "error", err)
	} else {
		r.logger.Debug("commands loaded", "path", path, "count", len(defs))
	}

	r.notify()
	return err
}

// ReloadIfChanged reloads only when the file differs from what the registry
// last read or wrote. It reports whether a reload happened.
func (r *Registry) ReloadIfChanged() (bool, error) {
	r.mu.RLock()
	path, last := r.path, r.digest
	r.mu.RUnlock()

	if path == "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	var current [sha256.Size]byte
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("read %s: %w: %w", path, ErrStorageUnavailable, err)
	default:
		current = sha256.Sum256(data)
	}

	if current == last {
		return false, nil
	}
	return true, r.Load()
}

// List returns a deep copy of all definitions in stored order.
func (r *Registry) List() []script.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]script.Definition, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.Clone()
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Get returns a copy of the definition with the given id.
func (r *Registry) Get(id string) (script.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := indexOf(r.defs, id)
	if i < 0 {
		return script.Definition{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return r.defs[i].Clone(), nil
}

// Add appends a new definition.
func (r *Registry) Add(def script.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.Clone()

	return r.mutate("add", func(defs []script.Definition) ([]script.Definition, error) {
		if indexOf(defs, def.ID) >= 0 {
			return nil, fmt.Errorf("add %q: %w", def.ID, ErrDuplicateID)
		}
		return append(defs, def), nil
	})
}

// Update replaces the definition sharing def.ID, keeping its position.
func (r *Registry) Update(def script.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.Clone()

	return r.mutate("update", func(defs []script.Definition) ([]script.Definition, error) {
		i := indexOf(defs, def.ID)
		if i < 0 {
			return nil, fmt.Errorf("update %q: %w", def.ID, ErrNotFound)
		}
		defs[i] = def
		return defs, nil
	})
}

// Rename replaces the definition oldID with def, which may carry a new id.
// The entry keeps its position.
func (r *Registry) Rename(oldID string, def script.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.Clone()

	return r.mutate("rename", func(defs []script.Definition) ([]script.Definition, error) {
		i := indexOf(defs, oldID)
		if i < 0 {
			return nil, fmt.Errorf("rename %q: %w", oldID, ErrNotFound)
		}
		if def.ID != oldID && indexOf(defs, def.ID) >= 0 {
			return nil, fmt.Errorf("rename %q to %q: %w", oldID, def.ID, ErrDuplicateID)
		}
		defs[i] = def
		return defs, nil
	})
}

// Delete removes the definition with the given id.
func (r *Registry) Delete(id string) error {
	return r.mutate("delete", func(defs []script.Definition) ([]script.Definition, error) {
		i := indexOf(defs, id)
		if i < 0 {
			return nil, fmt.Errorf("delete %q: %w", id, ErrNotFound)
		}
		return slices.Delete(defs, i, i+1), nil
	})
}

// mutate applies change to a copy of the list and persists it. Rejected
// changes leave the registry untouched and notify nobody. A failed save is
// rolled back, then subscribers are notified.
func (r *Registry) mutate(op string, change func([]script.Definition) ([]script.Definition, error)) error {
	r.mu.Lock()

	prev := r.defs
	next, err := change(slices.Clone(prev))
	if err != nil {
		r.mu.Unlock()
		return err
	}

	r.defs = next
	if err := r.persistLocked(); err != nil {
		r.defs = prev
		path := r.path
		r.mu.Unlock()
		r.logger.Error("commands not saved", "op", op, "path", path, "error", err)
		r.notify()
		return err
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// persistLocked writes the list to a temp file and renames it into place.
// Must be called with mu held.
func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(r.defs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w: %w", dir, ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".scriptmate-*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w: %w", r.path, ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w: %w", r.path, ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w: %w", r.path, ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace %s: %w: %w", r.path, ErrStorageUnavailable, err)
	}

	r.digest = sha256.Sum256(data)
	return nil
}

// Subscribe registers fn to run after every load and mutation.
// fn runs on the caller's goroutine, outside the registry lock.
func (r *Registry) Subscribe(fn func()) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify() {
	r.subMu.Lock()
	fns := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func indexOf(defs []script.Definition, id string) int {
	return slices.IndexFunc(defs, func(d script.Definition) bool {
		return d.ID == id
	})
}

// readDocument loads and validates the definitions file.
func readDocument(path string) ([]script.Definition, [sha256.Size]byte, error) {
	var digest [sha256.Size]byte
	empty := []script.Definition{}

	if path == "" {
		return empty, digest, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, digest, nil
	}
	if err != nil {
		return empty, digest, fmt.Errorf("read %s: %w: %w", path, ErrStorageUnavailable, err)
	}
	digest = sha256.Sum256(data)

	defs, err := Decode(data)
	if err != nil {
		return empty, digest, fmt.Errorf("load %s: %w", path, err)
	}
	return defs, digest, nil
}

// Decode parses a definitions document. Blank input is an empty list.
// Syntax errors wrap ErrStorageUnavailable; a wrong shape, an invalid
// definition or duplicate ids wrap script.ErrInvalidDefinition.
func Decode(data []byte) ([]script.Definition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []script.Definition{}, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("top level must be an array: %w", script.ErrInvalidDefinition)
	}

	var defs []script.Definition
	if err := json.Unmarshal(trimmed, &defs); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("parse json: %w: %w", ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("decode: %w: %w", script.ErrInvalidDefinition, err)
	}

	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := seen[defs[i].ID]; dup {
			return nil, fmt.Errorf("entry %d: id %q repeated: %w", i, defs[i].ID, script.ErrInvalidDefinition)
		}
		seen[defs[i].ID] = struct{}{}
		if defs[i].Args == nil {
			defs[i].Args = []script.Argument{}
		}
	}
	if defs == nil {
		defs = []script.Definition{}
	}
	return defs, nil
}

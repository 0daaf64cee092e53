package jsondb

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/storage"
)

// Registry caches the names of known classes. The class data tree decides
// membership; the index file is a materialized view of the in-memory list,
// appended on every registration and reconciled on exit.
type Registry struct {
	storage *storage.LocalStorage
	logger  *zap.Logger
	names   []string
}

// NewRegistry returns an uninitialized registry; call CacheClassRegistry
// before using it.
func NewRegistry(s *storage.LocalStorage, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{storage: s, logger: logger}
}

// GenerateRegistryFromFilesystem scans the class data tree for class files
// and returns the class names stored in them sorted by name. A file whose
// document cannot be read is listed under its base name.
func (r *Registry) GenerateRegistryFromFilesystem() ([]string, error) {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	err := r.storage.Walk(classDataDir, func(rel string) error {
		if filepath.Ext(rel) != ClassDataExt {
			return nil
		}
		name, err := r.readClassName(rel)
		if err != nil {
			name = strings.TrimSuffix(filepath.Base(rel), ClassDataExt)
			r.logger.Warn("unreadable class document, using file name", zap.String("file", rel), zap.Error(err))
		}
		if _, dup := seen[name]; dup {
			return nil
		}
		seen[name] = struct{}{}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// CacheClassRegistry rebuilds the list from the filesystem, writes the index
// file and returns the list. Names already recorded in the index keep their
// order; names only found on disk follow in name order.
func (r *Registry) CacheClassRegistry() ([]string, error) {
	onDisk, err := r.GenerateRegistryFromFilesystem()
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(onDisk))
	for _, name := range onDisk {
		present[name] = false
	}

	names := make([]string, 0, len(onDisk))
	if previous, err := r.readIndex(); err == nil {
		for _, name := range previous {
			if used, ok := present[name]; ok && !used {
				present[name] = true
				names = append(names, name)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, name := range onDisk {
		if !present[name] {
			names = append(names, name)
		}
	}

	r.names = names
	if _, err := r.storage.Save(registryIndexFile, serialize(names)); err != nil {
		return nil, err
	}
	r.logger.Debug("class registry cached", zap.Int("classes", len(names)))
	return r.List()
}

// RegisterClass adds name to the in-memory list and appends it to the index file.
func (r *Registry) RegisterClass(name string) error {
	if r.names == nil {
		return appErrors.Clone(appErrors.ErrConfiguration, "register class: class registry not initialized")
	}
	r.names = append(r.names, name)
	if err := r.storage.Append(registryIndexFile, []byte(name+"\n")); err != nil {
		return err
	}
	return nil
}

// ClassListExists checks the in-memory list only.
func (r *Registry) ClassListExists(name string) (bool, error) {
	if r.names == nil {
		return false, appErrors.Clone(appErrors.ErrConfiguration, "class list exists: class registry not initialized")
	}
	for _, existing := range r.names {
		if existing == name {
			return true, nil
		}
	}
	return false, nil
}

// List returns a copy of the cached names in registration order.
func (r *Registry) List() ([]string, error) {
	if r.names == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "list classes: class registry not initialized")
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out, nil
}

// CheckRegistryOnExit rewrites the index file from the in-memory list when
// the file is missing or its bytes differ. It reports whether it rewrote.
func (r *Registry) CheckRegistryOnExit() (bool, error) {
	if r.names == nil {
		return false, appErrors.Clone(appErrors.ErrConfiguration, "check registry: class registry not initialized")
	}
	expected := serialize(r.names)
	if r.storage.Exists(registryIndexFile) {
		current, err := r.storage.Read(registryIndexFile)
		if err != nil {
			return false, err
		}
		if bytes.Equal(current, expected) {
			return false, nil
		}
	}
	if _, err := r.storage.Save(registryIndexFile, expected); err != nil {
		return false, err
	}
	r.logger.Info("class registry index rewritten", zap.Int("classes", len(r.names)))
	return true, nil
}

// Close reconciles the index file and releases the cache. Closing an
// uninitialized or already closed registry does nothing.
func (r *Registry) Close() error {
	if r.names == nil {
		return nil
	}
	_, err := r.CheckRegistryOnExit()
	r.names = nil
	return err
}

func (r *Registry) readClassName(rel string) (string, error) {
	data, err := r.storage.Read(rel)
	if err != nil {
		return "", err
	}
	var doc classDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if doc.Name == "" {
		return "", errors.New("class document has no name")
	}
	return doc.Name, nil
}

func (r *Registry) readIndex() ([]string, error) {
	if !r.storage.Exists(registryIndexFile) {
		return nil, fs.ErrNotExist
	}
	data, err := r.storage.Read(registryIndexFile)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func serialize(names []string) []byte {
	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

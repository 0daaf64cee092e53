package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./app_data"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return filename, nil
}

// Append adds data to the end of a stored file, creating it when missing.
func (s *LocalStorage) Append(filename string, data []byte) error {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open file for append: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("append file: %w", err)
	}
	return file.Close()
}

// Read returns the full contents of a stored file.
func (s *LocalStorage) Read(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Exists reports whether a regular file or directory is present at filename.
func (s *LocalStorage) Exists(filename string) bool {
	_, err := os.Stat(s.resolve(filename))
	return err == nil
}

// MkdirAll creates a directory (and parents) under the base dir.
func (s *LocalStorage) MkdirAll(dir string) error {
	if err := os.MkdirAll(s.resolve(dir), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

// MoveIn moves an external file to filename under the base dir. When the
// destination already exists the source is left alone and moved is false.
func (s *LocalStorage) MoveIn(src, filename string) (moved bool, err error) {
	dst := s.resolve(filename)
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat destination: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return true, nil
	}
	// Rename fails across filesystems; fall back to copy then remove.
	if err := copyFile(src, dst); err != nil {
		return false, err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("remove moved source: %w", err)
	}
	return true, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	path := s.resolve(filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Walk visits every regular file below dir, passing paths relative to the base dir.
func (s *LocalStorage) Walk(dir string, fn func(rel string) error) error {
	root := s.resolve(dir)
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		return fn(rel)
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}
	return nil
}

// Path exposes the underlying path of a stored file.
func (s *LocalStorage) Path(filename string) string {
	return s.resolve(filename)
}

// BaseDir returns the storage root.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

func (s *LocalStorage) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy file: %w", err)
	}
	return out.Close()
}

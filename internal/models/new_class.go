package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

const stagingAvatarDir = "avatars"

// NewClass is a Class under composition. It exclusively owns a staging
// directory holding avatar files until a backend commits them. Close must be
// called on every path once the class is no longer needed.
type NewClass struct {
	Class

	tempDir   string
	avatarDir string
	closed    bool
}

// BeginNewClass creates the staging area under stagingRoot (the OS temp dir
// when empty) and returns an empty class named name.
func BeginNewClass(name string, stagingRoot string) (*NewClass, error) {
	nc := &NewClass{Class: Class{Name: name}}
	if err := validate.Var(name, "required,max=255"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid class name")
	}

	if stagingRoot == "" {
		stagingRoot = os.TempDir()
	}
	nc.tempDir = filepath.Join(stagingRoot, "classchart-new-class-"+uuid.NewString())
	nc.avatarDir = filepath.Join(nc.tempDir, stagingAvatarDir)
	if err := os.MkdirAll(nc.avatarDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return nc, nil
}

// TempDir is the root of the staging area.
func (nc *NewClass) TempDir() string { return nc.tempDir }

// AvatarDir holds staged avatar files.
func (nc *NewClass) AvatarDir() string { return nc.avatarDir }

// StagedAvatarPath resolves a staged avatar filename.
func (nc *NewClass) StagedAvatarPath(avatarID ID) string {
	return filepath.Join(nc.avatarDir, string(avatarID))
}

// StageAvatar copies sourcePath into the staging area and returns the staged
// filename to use as the student's avatar id. A clashing name from a
// different source gets a numeric suffix.
func (nc *NewClass) StageAvatar(sourcePath string) (ID, error) {
	if nc.closed {
		return NoID, appErrors.Clone(appErrors.ErrConfiguration, "stage avatar: staging area already released")
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return NoID, fmt.Errorf("read avatar source: %w", err)
	}

	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for i := 1; ; i++ {
		existing, err := os.ReadFile(filepath.Join(nc.avatarDir, name))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return NoID, fmt.Errorf("check staged avatar %s: %w", name, err)
		}
		if string(existing) == string(data) {
			return ID(name), nil
		}
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}

	if err := os.WriteFile(filepath.Join(nc.avatarDir, name), data, 0o644); err != nil {
		return NoID, fmt.Errorf("stage avatar: %w", err)
	}
	return ID(name), nil
}

// Closed reports whether the staging area was released.
func (nc *NewClass) Closed() bool { return nc.closed }

// Close recursively removes the staging area. Safe to call more than once.
func (nc *NewClass) Close() error {
	if nc == nil || nc.closed {
		return nil
	}
	nc.closed = true
	if nc.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(nc.tempDir); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

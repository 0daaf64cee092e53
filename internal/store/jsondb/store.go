// Package jsondb stores each class as a JSON document in its own directory
// under the app data root, with avatars and chart files beside it.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/noah-isme/classchart/internal/models"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/storage"
)

// BackendName is the configuration key of this backend.
const BackendName = "json"

// Options configures the JSON backend.
type Options struct {
	AppDataDir        string
	ChartSaveDir      string
	DefaultAvatarPath string
	Logger            *zap.Logger
}

// Store is the flat-file backend.
type Store struct {
	storage       *storage.LocalStorage
	registry      *Registry
	chartSaveDir  string
	defaultAvatar string
	logger        *zap.Logger
}

// New prepares the app data tree and caches the class registry.
func New(opts Options) (*Store, error) {
	if opts.DefaultAvatarPath == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "json backend: default avatar path is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := storage.NewLocalStorage(opts.AppDataDir)
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(classDataDir); err != nil {
		return nil, err
	}

	registry := NewRegistry(fs, logger.Named("registry"))
	if _, err := registry.CacheClassRegistry(); err != nil {
		return nil, err
	}

	return &Store{
		storage:       fs,
		registry:      registry,
		chartSaveDir:  opts.ChartSaveDir,
		defaultAvatar: opts.DefaultAvatarPath,
		logger:        logger,
	}, nil
}

func (s *Store) BackendName() string { return BackendName }

func (s *Store) DefaultAvatarPath() string { return s.defaultAvatar }

// Registry exposes the class name cache.
func (s *Store) Registry() *Registry { return s.registry }

// GetClasses lists classes in registration order; the id is the class name.
func (s *Store) GetClasses(ctx context.Context) ([]models.ClassIdentifier, error) {
	names, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	out := make([]models.ClassIdentifier, 0, len(names))
	for _, name := range names {
		out = append(out, models.NewClassIdentifier(models.ID(name), name))
	}
	return out, nil
}

func (s *Store) ClassNameExists(ctx context.Context, name string) (bool, error) {
	return s.registry.ClassListExists(name)
}

// CreateClass writes the directory skeleton, registers the name, writes the
// class document and moves staged avatars. Earlier steps are not undone when
// a later one fails.
func (s *Store) CreateClass(ctx context.Context, newClass *models.NewClass) (id models.ID, err error) {
	defer func() {
		if cerr := newClass.Close(); cerr != nil {
			if err == nil {
				err = cerr
				return
			}
			s.logger.Error("release staging area", zap.String("class", newClass.Name), zap.Error(cerr))
		}
	}()

	if newClass == nil {
		return models.NoID, appErrors.Clone(appErrors.ErrValidation, "create class: new class is nil")
	}
	if err := newClass.Validate(); err != nil {
		return models.NoID, err
	}
	name := newClass.Name
	exists, err := s.registry.ClassListExists(name)
	if err != nil {
		return models.NoID, err
	}
	if exists {
		return models.NoID, appErrors.Clone(appErrors.ErrConflict, "class already exists: "+name)
	}
	if err := s.checkClassKey(name); err != nil {
		return models.NoID, err
	}

	chartSaveDir, err := s.ChartSaveDir(name)
	if err != nil {
		return models.NoID, err
	}
	for _, dir := range []string{classAvatarDir(name), classChartDir(name)} {
		if err := s.storage.MkdirAll(dir); err != nil {
			return models.NoID, err
		}
	}
	if err := os.MkdirAll(chartSaveDir, 0o755); err != nil {
		return models.NoID, fmt.Errorf("create chart save directory: %w", err)
	}

	if err := s.registry.RegisterClass(name); err != nil {
		return models.NoID, err
	}

	if err := s.writeClass(&newClass.Class); err != nil {
		return models.NoID, err
	}

	for _, student := range newClass.Students {
		if !student.HasAvatar() {
			continue
		}
		if _, err := s.CommitAvatar(newClass.StagedAvatarPath(student.AvatarID), name, string(student.AvatarID)); err != nil {
			return models.NoID, appErrors.Wrapf(appErrors.ErrInternal, err, "move avatar %s for %s", student.AvatarID, student.Name)
		}
	}

	newClass.ID = models.ID(name)
	s.logger.Info("class created",
		zap.String("class", name),
		zap.Int("students", len(newClass.Students)),
		zap.Int("avatars", newClass.AvatarCount()))
	return newClass.ID, nil
}

// CommitAvatar moves a staged avatar into the class avatar folder. An
// existing destination file is never overwritten; moved reports whether the
// file was moved.
func (s *Store) CommitAvatar(stagedPath, className, filename string) (moved bool, err error) {
	moved, err = s.storage.MoveIn(stagedPath, classAvatarFile(className, filename))
	if err != nil {
		return false, err
	}
	if !moved {
		s.logger.Debug("avatar already present, move skipped",
			zap.String("class", className), zap.String("avatar", filename))
	}
	return moved, nil
}

func (s *Store) LoadClass(ctx context.Context, classID models.ID) (*models.Class, error) {
	name := string(classID)
	if classKey(name) == "" || !s.storage.Exists(classFile(name)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+name)
	}
	data, err := s.storage.Read(classFile(name))
	if err != nil {
		return nil, err
	}
	var doc classDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, appErrors.Wrapf(appErrors.ErrInternal, err, "decode class %s", name)
	}
	if doc.Name != name {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+name)
	}
	class := doc.toClass()
	class.ID = classID
	return class, nil
}

// UpdateClass overwrites the document of an already registered class.
func (s *Store) UpdateClass(ctx context.Context, class *models.Class) error {
	if err := class.Validate(); err != nil {
		return err
	}
	exists, err := s.registry.ClassListExists(class.Name)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found: "+class.Name)
	}
	if err := s.writeClass(class); err != nil {
		return err
	}
	class.ID = models.ID(class.Name)
	return nil
}

// GetAvatarPath resolves an avatar given as a path, absolute or relative to
// the class data tree. Avatar filenames alone need GetAvatarPathClassFilename.
func (s *Store) GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error) {
	if avatarID.IsZero() {
		return s.defaultAvatar, nil
	}
	candidate := string(avatarID)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(classDataDir, candidate)
	}
	if s.storage.Exists(candidate) {
		return s.storage.Path(candidate), nil
	}
	return s.defaultAvatar, nil
}

// GetAvatarPathClassFilename resolves an avatar filename inside a class's
// avatar folder, falling back to the default avatar.
func (s *Store) GetAvatarPathClassFilename(ctx context.Context, className string, avatarFilename string) (string, error) {
	if avatarFilename == "" {
		return s.defaultAvatar, nil
	}
	rel := classAvatarFile(className, avatarFilename)
	if !s.storage.Exists(rel) {
		return s.defaultAvatar, nil
	}
	return s.storage.Path(rel), nil
}

// CreateChart writes the chart document, mapping each score to the avatar
// paths of the students who achieved it.
func (s *Store) CreateChart(ctx context.Context, chart *models.ChartData) error {
	if err := chart.Validate(); err != nil {
		return err
	}
	if !s.storage.Exists(classDir(chart.ClassName)) {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found: "+chart.ClassName)
	}

	doc := chartDocument{
		ClassName:            chart.ClassName,
		ChartName:            chart.Name,
		ChartDefaultFilename: chart.DefaultFilename,
		ChartParams:          chart.Params,
		ScoreAvatarDict:      make(map[string][]string, len(chart.Scores)),
	}
	if doc.ChartParams == nil {
		doc.ChartParams = map[string]interface{}{}
	}
	for _, score := range chart.SortedScores() {
		paths := make([]string, 0, len(chart.Scores[score]))
		for _, student := range chart.Scores[score] {
			if student == nil {
				continue
			}
			path, err := s.GetAvatarPathClassFilename(ctx, chart.ClassName, string(student.AvatarID))
			if err != nil {
				return err
			}
			paths = append(paths, path)
		}
		doc.ScoreAvatarDict[ScoreKey(score)] = paths
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return appErrors.Wrapf(appErrors.ErrInternal, err, "encode chart %s", chart.Name)
	}
	rel := chartFile(chart.ClassName, chart.Name)
	if _, err := s.storage.Save(rel, data); err != nil {
		return err
	}
	chart.ID = models.ID(models.PathSafe(chart.Name))
	chart.ClassID = models.ID(chart.ClassName)
	s.logger.Info("chart created", zap.String("class", chart.ClassName), zap.String("chart", chart.Name))
	return nil
}

// SaveChartImage writes the rendered image into the class's chart folder.
func (s *Store) SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error) {
	if err := chart.Validate(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "save chart image: image is empty")
	}
	rel := filepath.Join(classChartDir(chart.ClassName), models.PathSafe(chart.DefaultFilename)+chartImageExt)
	if _, err := s.storage.Save(rel, image); err != nil {
		return "", err
	}
	return s.storage.Path(rel), nil
}

// LoadChartDocument reads a chart document back with numeric score keys.
func (s *Store) LoadChartDocument(className, chartName string) (*ChartDocument, error) {
	rel := chartFile(className, chartName)
	if !s.storage.Exists(rel) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "chart not found: "+chartName)
	}
	data, err := s.storage.Read(rel)
	if err != nil {
		return nil, err
	}
	var doc chartDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, appErrors.Wrapf(appErrors.ErrInternal, err, "decode chart %s", chartName)
	}
	return doc.toChartDocument()
}

// ChartSaveDir is the per-class folder under the configured chart save root.
func (s *Store) ChartSaveDir(className string) (string, error) {
	if s.chartSaveDir == "" {
		return "", appErrors.Clone(appErrors.ErrConfiguration, "chart save directory not set")
	}
	return filepath.Join(s.chartSaveDir, models.PathSafe(className)), nil
}

// Close flushes the registry to its index file.
func (s *Store) Close() error {
	return s.registry.Close()
}

// checkClassKey rejects names without a usable path-safe key and names whose
// key is already taken by another class.
func (s *Store) checkClassKey(name string) error {
	key := classKey(name)
	if key == "" {
		return appErrors.Clone(appErrors.ErrValidation, "class name has no path-safe characters: "+name)
	}
	names, err := s.registry.List()
	if err != nil {
		return err
	}
	for _, other := range names {
		if classKey(other) == key {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("class %q uses the same folder as %q", name, other))
		}
	}
	if s.storage.Exists(classFile(name)) {
		return appErrors.Clone(appErrors.ErrConflict, "class folder already exists: "+key)
	}
	return nil
}

func (s *Store) writeClass(class *models.Class) error {
	data, err := json.Marshal(newClassDocument(class))
	if err != nil {
		return appErrors.Wrapf(appErrors.ErrInternal, err, "encode class %s", class.Name)
	}
	if _, err := s.storage.Save(classFile(class.Name), data); err != nil {
		return err
	}
	return nil
}

func chartFile(className, chartName string) string {
	return filepath.Join(classChartDir(className), models.PathSafe(chartName)+ChartDataExt)
}

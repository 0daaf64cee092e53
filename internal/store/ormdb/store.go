// Package ormdb implements the relational backend with gorm entities. Every
// multi-row write runs in one gorm transaction.
package ormdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/classchart/internal/models"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/storage"
)

// BackendName is the configuration key of this backend.
const BackendName = "orm"

const (
	avatarCacheDir = "avatar_cache"
	chartImageDir  = "chart_images"
)

// Options configures the ORM backend.
type Options struct {
	DB                *gorm.DB
	AppDataDir        string
	DefaultAvatarPath string
	Logger            *zap.Logger
}

// Store persists rosters through gorm.
type Store struct {
	db            *gorm.DB
	storage       *storage.LocalStorage
	avatars       *storage.BlobCache
	defaultAvatar string
	logger        *zap.Logger
}

func New(opts Options) (*Store, error) {
	if opts.DefaultAvatarPath == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "orm backend: default avatar path is required")
	}
	if opts.DB == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "orm backend: database handle is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fs, err := storage.NewLocalStorage(opts.AppDataDir)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:            opts.DB,
		storage:       fs,
		avatars:       storage.NewBlobCache(fs, avatarCacheDir, "avatar"),
		defaultAvatar: opts.DefaultAvatarPath,
		logger:        logger,
	}, nil
}

// AutoMigrate creates or updates the five tables.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) BackendName() string { return BackendName }

func (s *Store) DefaultAvatarPath() string { return s.defaultAvatar }

func (s *Store) GetClasses(ctx context.Context) ([]models.ClassIdentifier, error) {
	var rows []ClassModel
	if err := s.db.WithContext(ctx).Select("id", "name").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	out := make([]models.ClassIdentifier, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.NewClassIdentifier(formatID(row.ID), row.Name))
	}
	return out, nil
}

func (s *Store) ClassNameExists(ctx context.Context, name string) (bool, error) {
	return classNameTaken(s.db.WithContext(ctx), name)
}

// CreateClass stores the class, its avatars and its students. Nothing is
// kept when any row fails.
func (s *Store) CreateClass(ctx context.Context, newClass *models.NewClass) (id models.ID, err error) {
	defer func() {
		if cerr := newClass.Close(); cerr != nil {
			if err == nil {
				err = cerr
				return
			}
			s.logger.Error("release staging area", zap.Error(cerr))
		}
	}()

	if newClass == nil {
		return models.NoID, appErrors.Clone(appErrors.ErrValidation, "create class: new class is nil")
	}
	if err := newClass.Validate(); err != nil {
		return models.NoID, err
	}

	class := ClassModel{Name: newClass.Name}
	students := make([]StudentModel, len(newClass.Students))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := classNameTaken(tx, newClass.Name)
		if err != nil {
			return err
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "class already exists: "+newClass.Name)
		}
		if err := tx.Create(&class).Error; err != nil {
			return fmt.Errorf("insert class: %w", err)
		}

		for i, student := range newClass.Students {
			students[i] = StudentModel{Name: student.Name, ClassID: class.ID}
			if student.HasAvatar() {
				image, err := os.ReadFile(newClass.StagedAvatarPath(student.AvatarID))
				if err != nil {
					return fmt.Errorf("read staged avatar %s: %w", student.AvatarID, err)
				}
				avatar := AvatarModel{Image: image}
				if err := tx.Create(&avatar).Error; err != nil {
					return fmt.Errorf("insert avatar: %w", err)
				}
				students[i].AvatarID = &avatar.ID
			}
			if err := tx.Create(&students[i]).Error; err != nil {
				return fmt.Errorf("insert student: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.NoID, err
	}

	newClass.ID = formatID(class.ID)
	for i, student := range newClass.Students {
		student.ID = formatID(students[i].ID)
		if students[i].AvatarID != nil {
			student.AvatarID = formatID(*students[i].AvatarID)
		}
	}
	s.logger.Info("class created",
		zap.String("class", newClass.Name),
		zap.Int64("class_id", class.ID),
		zap.Int("students", len(students)))
	return newClass.ID, nil
}

func (s *Store) LoadClass(ctx context.Context, classID models.ID) (*models.Class, error) {
	id, ok := parseID(classID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+classID.String())
	}

	var row ClassModel
	err := s.db.WithContext(ctx).
		Preload("Students", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+classID.String())
		}
		return nil, fmt.Errorf("find class: %w", err)
	}

	class := &models.Class{ID: formatID(row.ID), Name: row.Name, Students: make([]*models.Student, 0, len(row.Students))}
	for _, st := range row.Students {
		student := &models.Student{ID: formatID(st.ID), Name: st.Name}
		if st.AvatarID != nil {
			student.AvatarID = formatID(*st.AvatarID)
		}
		class.Students = append(class.Students, student)
	}
	return class, nil
}

func (s *Store) UpdateClass(ctx context.Context, class *models.Class) error {
	return appErrors.Clone(appErrors.ErrNotImplemented, "orm backend: update_class is not supported")
}

// GetAvatarPath reads the avatar blob and returns its file in the avatar
// cache. Cached files are matched on content, so a different database
// behind the same app data never serves a stale avatar.
func (s *Store) GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error) {
	id, ok := parseID(avatarID)
	if !ok {
		return s.defaultAvatar, nil
	}

	var avatar AvatarModel
	if err := s.db.WithContext(ctx).First(&avatar, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultAvatar, s.avatars.Evict(id)
		}
		return "", fmt.Errorf("find avatar: %w", err)
	}
	return s.avatars.Put(id, avatar.Image)
}

// CreateChart inserts the chart row and one score row per student. Students
// must carry ids assigned by this backend.
func (s *Store) CreateChart(ctx context.Context, chart *models.ChartData) error {
	if err := chart.Validate(); err != nil {
		return err
	}

	var scores []ScoreModel
	for _, value := range chart.SortedScores() {
		for _, student := range chart.Scores[value] {
			if student == nil {
				continue
			}
			studentID, ok := parseID(student.ID)
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation, "student has no stored id: "+student.Name)
			}
			scores = append(scores, ScoreModel{StudentID: studentID, Value: value})
		}
	}

	row := ChartModel{Name: chart.Name, Date: chart.Date}
	if chart.Params != nil {
		params, err := json.Marshal(chart.Params)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, "encode chart params")
		}
		row.Params = datatypes.JSON(params)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert chart: %w", err)
		}
		if len(scores) == 0 {
			return nil
		}
		for i := range scores {
			scores[i].ChartID = row.ID
		}
		if err := tx.Create(&scores).Error; err != nil {
			return fmt.Errorf("insert scores: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	chart.ID = formatID(row.ID)
	return nil
}

// SaveChartImage writes image under chart_images and into the chart row. The
// column update is rolled back when the file cannot be written.
func (s *Store) SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error) {
	if err := chart.Validate(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "chart image is empty")
	}
	chartID, ok := parseID(chart.ID)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "chart must be created before its image is saved: "+chart.Name)
	}

	rel := filepath.Join(chartImageDir, models.PathSafe(chart.ClassName), models.PathSafe(chart.DefaultFilename)+".png")
	var path string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ChartModel{}).Where("id = ?", chartID).Update("image", image)
		if result.Error != nil {
			return fmt.Errorf("store chart image: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "chart not found: "+chart.ID.String())
		}
		if _, err := s.storage.Save(rel, image); err != nil {
			return err
		}
		path = s.storage.Path(rel)
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func classNameTaken(db *gorm.DB, name string) (bool, error) {
	var count int64
	if err := db.Model(&ClassModel{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return count > 0, nil
}

func formatID(id int64) models.ID {
	return models.ID(strconv.FormatInt(id, 10))
}

func parseID(id models.ID) (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

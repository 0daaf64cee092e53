// Package sqldb implements the relational backend with hand-written SQL over sqlx.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/classchart/internal/models"
	"github.com/noah-isme/classchart/pkg/config"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/storage"
)

// BackendName is the configuration key of this backend.
const BackendName = "sql"

const avatarCacheDir = "avatar_cache"

const (
	queryListClasses    = `SELECT id, name FROM class ORDER BY id`
	queryClassNameTaken = `SELECT 1 FROM class WHERE name = ? LIMIT 1`
	queryInsertClass    = `INSERT INTO class (name) VALUES (?) RETURNING id`
	queryInsertAvatar   = `INSERT INTO avatar (image) VALUES (?) RETURNING id`
	queryInsertStudent  = `INSERT INTO student (name, class_id, avatar_id) VALUES (?, ?, ?) RETURNING id`
	queryFindClass      = `SELECT id, name FROM class WHERE id = ?`
	queryClassStudents  = `SELECT id, name, class_id, avatar_id FROM student WHERE class_id = ? ORDER BY id`
	queryAvatarImage    = `SELECT image FROM avatar WHERE id = ?`
)

// Options configures the raw SQL backend.
type Options struct {
	DB                *sqlx.DB
	Dialect           string
	AppDataDir        string
	DefaultAvatarPath string
	Logger            *zap.Logger
}

// Store persists rosters through direct statements.
type Store struct {
	db            *sqlx.DB
	dialect       string
	storage       *storage.LocalStorage
	avatars       *storage.BlobCache
	defaultAvatar string
	logger        *zap.Logger
}

// New wraps an open connection pool. Call InitSchema before first use on an
// empty database.
func New(opts Options) (*Store, error) {
	if opts.DefaultAvatarPath == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "sql backend: default avatar path is required")
	}
	if opts.DB == nil {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "sql backend: database handle is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fs, err := storage.NewLocalStorage(opts.AppDataDir)
	if err != nil {
		return nil, err
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = config.DriverSQLite
	}
	return &Store{
		db:            opts.DB,
		dialect:       dialect,
		storage:       fs,
		avatars:       storage.NewBlobCache(fs, avatarCacheDir, "avatar"),
		defaultAvatar: opts.DefaultAvatarPath,
		logger:        logger,
	}, nil
}

func (s *Store) BackendName() string { return BackendName }

func (s *Store) DefaultAvatarPath() string { return s.defaultAvatar }

func (s *Store) GetClasses(ctx context.Context) ([]models.ClassIdentifier, error) {
	var rows []classRow
	if err := s.db.SelectContext(ctx, &rows, queryListClasses); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	out := make([]models.ClassIdentifier, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.NewClassIdentifier(formatID(row.ID), row.Name))
	}
	return out, nil
}

func (s *Store) ClassNameExists(ctx context.Context, name string) (bool, error) {
	return classNameTaken(ctx, s.db, name)
}

// CreateClass inserts the class, each avatar blob and each student in one
// transaction and commits once.
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

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.NoID, fmt.Errorf("begin create class: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	taken, err := classNameTaken(ctx, tx, newClass.Name)
	if err != nil {
		return models.NoID, err
	}
	if taken {
		return models.NoID, appErrors.Clone(appErrors.ErrConflict, "class already exists: "+newClass.Name)
	}

	var classID int64
	if err := tx.QueryRowxContext(ctx, tx.Rebind(queryInsertClass), newClass.Name).Scan(&classID); err != nil {
		return models.NoID, fmt.Errorf("insert class: %w", err)
	}

	studentIDs := make([]int64, len(newClass.Students))
	avatarIDs := make([]sql.NullInt64, len(newClass.Students))
	for i, student := range newClass.Students {
		if student.HasAvatar() {
			image, err := os.ReadFile(newClass.StagedAvatarPath(student.AvatarID))
			if err != nil {
				return models.NoID, fmt.Errorf("read staged avatar %s: %w", student.AvatarID, err)
			}
			var avatarID int64
			if err := tx.QueryRowxContext(ctx, tx.Rebind(queryInsertAvatar), image).Scan(&avatarID); err != nil {
				return models.NoID, fmt.Errorf("insert avatar: %w", err)
			}
			avatarIDs[i] = sql.NullInt64{Int64: avatarID, Valid: true}
		}
		if err := tx.QueryRowxContext(ctx, tx.Rebind(queryInsertStudent), student.Name, classID, avatarIDs[i]).Scan(&studentIDs[i]); err != nil {
			return models.NoID, fmt.Errorf("insert student: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.NoID, fmt.Errorf("commit create class: %w", err)
	}

	newClass.ID = formatID(classID)
	for i, student := range newClass.Students {
		student.ID = formatID(studentIDs[i])
		if avatarIDs[i].Valid {
			student.AvatarID = formatID(avatarIDs[i].Int64)
		}
	}
	s.logger.Info("class created",
		zap.String("class", newClass.Name),
		zap.Int64("class_id", classID),
		zap.Int("students", len(newClass.Students)))
	return newClass.ID, nil
}

// LoadClass reads the class row then its students in insertion order.
func (s *Store) LoadClass(ctx context.Context, classID models.ID) (*models.Class, error) {
	id, ok := parseID(classID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+classID.String())
	}

	var row classRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(queryFindClass), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found: "+classID.String())
		}
		return nil, fmt.Errorf("find class: %w", err)
	}

	var students []studentRow
	if err := s.db.SelectContext(ctx, &students, s.db.Rebind(queryClassStudents), id); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}

	class := &models.Class{ID: formatID(row.ID), Name: row.Name, Students: make([]*models.Student, 0, len(students))}
	for _, st := range students {
		class.Students = append(class.Students, st.toStudent())
	}
	return class, nil
}

func (s *Store) UpdateClass(ctx context.Context, class *models.Class) error {
	return appErrors.Clone(appErrors.ErrNotImplemented, "sql backend: update_class is not supported")
}

// GetAvatarPath reads the avatar blob and returns its file in the avatar
// cache. Cached files are matched on content, so a different database
// behind the same app data never serves a stale avatar.
func (s *Store) GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error) {
	id, ok := parseID(avatarID)
	if !ok {
		return s.defaultAvatar, nil
	}

	var image []byte
	if err := s.db.GetContext(ctx, &image, s.db.Rebind(queryAvatarImage), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultAvatar, s.avatars.Evict(id)
		}
		return "", fmt.Errorf("find avatar: %w", err)
	}
	return s.avatars.Put(id, image)
}

func (s *Store) CreateChart(ctx context.Context, chart *models.ChartData) error {
	return appErrors.Clone(appErrors.ErrNotImplemented, "sql backend: create_chart is not supported")
}

func (s *Store) SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error) {
	return "", appErrors.Clone(appErrors.ErrNotImplemented, "sql backend: save_chart_image is not supported")
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rebindQueryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func classNameTaken(ctx context.Context, q rebindQueryer, name string) (bool, error) {
	var exists int
	if err := sqlx.GetContext(ctx, q, &exists, q.Rebind(queryClassNameTaken), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

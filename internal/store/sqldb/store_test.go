package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classchart/internal/models"
	"github.com/noah-isme/classchart/internal/store"
	"github.com/noah-isme/classchart/internal/store/storetest"
	"github.com/noah-isme/classchart/pkg/config"
	"github.com/noah-isme/classchart/pkg/database"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

var _ store.Database = (*Store)(nil)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewSQLite(config.DatabaseConfig{File: filepath.Join(dir, "classchart.db")})
	require.NoError(t, err)
	s, err := New(Options{DB: db, Dialect: config.DriverSQLite, AppDataDir: dir, DefaultAvatarPath: "resources/default_avatar.png"})
	require.NoError(t, err)
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	s, err := New(Options{DB: sqlx.NewDb(db, "sqlmock"), AppDataDir: t.TempDir(), DefaultAvatarPath: "default.png"})
	require.NoError(t, err)
	return s, mock
}

func TestContract(t *testing.T) {
	storetest.Run(t, storetest.Harness{
		Open:            func(t *testing.T) store.Database { return newSQLiteStore(t) },
		MissingClassID:  "9999",
		MissingAvatarID: "9999",
	})
}

func TestNewRequiresDefaultAvatarAndDB(t *testing.T) {
	_, err := New(Options{DB: &sqlx.DB{}})
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	_, err = New(Options{DefaultAvatarPath: "d.png"})
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
}

func TestCreateClassStatementSequence(t *testing.T) {
	s, mock := newMockStore(t)
	nc := storetest.BuildNewClass(t, "7B", []storetest.StudentSpec{{Name: "Cali", Avatar: "Cali_avatar.png"}, {Name: "Ben"}})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class WHERE name = ? LIMIT 1")).
		WithArgs("7B").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO class (name) VALUES (?) RETURNING id")).
		WithArgs("7B").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO avatar (image) VALUES (?) RETURNING id")).
		WithArgs(storetest.AvatarBytes("Cali_avatar.png")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO student (name, class_id, avatar_id) VALUES (?, ?, ?) RETURNING id")).
		WithArgs("Cali", int64(4), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO student (name, class_id, avatar_id) VALUES (?, ?, ?) RETURNING id")).
		WithArgs("Ben", int64(4), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectCommit()

	id, err := s.CreateClass(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, models.ID("4"), id)
	assert.Equal(t, models.ID("20"), nc.Students[0].ID)
	assert.Equal(t, models.ID("9"), nc.Students[0].AvatarID)
	assert.Equal(t, models.ID("21"), nc.Students[1].ID)
	assert.False(t, nc.Students[1].HasAvatar())
	assert.True(t, nc.Closed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClassRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	nc := storetest.BuildNewClass(t, "7B", []storetest.StudentSpec{{Name: "Ben"}})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class WHERE name = ? LIMIT 1")).
		WithArgs("7B").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("INSERT INTO class").
		WithArgs("7B").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO student").
		WithArgs("Ben", int64(1), nil).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := s.CreateClass(context.Background(), nc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert student")
	assert.True(t, nc.Closed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClassConflict(t *testing.T) {
	s, mock := newMockStore(t)
	nc := storetest.BuildNewClass(t, "7B", nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM class").
		WithArgs("7B").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.CreateClass(context.Background(), nc)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadClassTwoQueries(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM class WHERE id = ?")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "so many"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, class_id, avatar_id FROM student WHERE class_id = ? ORDER BY id")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "class_id", "avatar_id"}).
			AddRow(int64(7), "Danielle", int64(3), int64(2)).
			AddRow(int64(8), "Femi", int64(3), nil))

	class, err := s.LoadClass(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, models.ID("3"), class.ID)
	require.Len(t, class.Students, 2)
	assert.Equal(t, models.ID("7"), class.Students[0].ID)
	assert.Equal(t, models.ID("2"), class.Students[0].AvatarID)
	assert.False(t, class.Students[1].HasAvatar())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadClassUnparseableID(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.LoadClass(context.Background(), "not-a-number")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClasses(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM class ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "one class").AddRow(int64(2), "another"))

	classes, err := s.GetClasses(context.Background())
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, models.ID("2"), classes[1].ID())
	assert.Equal(t, "another", classes[1].Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAvatarPathCachesBlob(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("SELECT image FROM avatar WHERE id = ?")
	mock.ExpectQuery(query).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"image"}).AddRow([]byte("png-bytes")))
	mock.ExpectQuery(query).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"image"}).AddRow([]byte("png-bytes")))

	ctx := context.Background()
	first, err := s.GetAvatarPath(ctx, "5")
	require.NoError(t, err)
	second, err := s.GetAvatarPath(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAvatarPathReplacesStaleBlob(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("SELECT image FROM avatar WHERE id = ?")
	mock.ExpectQuery(query).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"image"}).AddRow([]byte("old-bytes")))
	mock.ExpectQuery(query).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"image"}).AddRow([]byte("new-bytes")))
	mock.ExpectQuery(query).WithArgs(int64(5)).
		WillReturnError(sql.ErrNoRows)

	ctx := context.Background()
	stale, err := s.GetAvatarPath(ctx, "5")
	require.NoError(t, err)
	fresh, err := s.GetAvatarPath(ctx, "5")
	require.NoError(t, err)
	assert.NotEqual(t, stale, fresh)
	assert.NoFileExists(t, stale)

	data, err := os.ReadFile(fresh)
	require.NoError(t, err)
	assert.Equal(t, "new-bytes", string(data))

	gone, err := s.GetAvatarPath(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, s.defaultAvatar, gone)
	assert.NoFileExists(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsupportedOperations(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	chart := &models.ChartData{ClassName: "c", Name: "n", DefaultFilename: "n"}

	assert.True(t, errors.Is(s.UpdateClass(ctx, &models.Class{Name: "c"}), appErrors.ErrNotImplemented))
	assert.True(t, errors.Is(s.CreateChart(ctx, chart), appErrors.ErrNotImplemented))
	_, err := s.SaveChartImage(ctx, chart, []byte("png"))
	assert.True(t, errors.Is(err, appErrors.ErrNotImplemented))
	assert.False(t, errors.Is(err, appErrors.ErrConfiguration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newSQLiteStore(t)
	defer s.Close()

	_, err := s.db.Exec(`INSERT INTO student (name, class_id) VALUES ('orphan', 12345)`)
	assert.Error(t, err)
}

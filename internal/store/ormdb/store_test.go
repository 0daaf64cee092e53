package ormdb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"

	"github.com/noah-isme/classchart/internal/models"
	"github.com/noah-isme/classchart/internal/store"
	"github.com/noah-isme/classchart/internal/store/storetest"
	"github.com/noah-isme/classchart/pkg/config"
	"github.com/noah-isme/classchart/pkg/database"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

var _ store.Database = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewGorm(
		config.DatabaseConfig{File: filepath.Join(dir, "classchart.db")},
		NewGormLogger(zap.NewNop(), gormLogger.Silent),
	)
	require.NoError(t, err)
	s, err := New(Options{DB: db, AppDataDir: dir, DefaultAvatarPath: "resources/default_avatar.png"})
	require.NoError(t, err)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, storetest.Harness{
		Open:            func(t *testing.T) store.Database { return newTestStore(t) },
		MissingClassID:  "4242",
		MissingAvatarID: "4242",
	})
}

func TestNewRequiresDefaultAvatar(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
}

func TestCreateClassIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	nc := storetest.BuildNewClass(t, "8A", []storetest.StudentSpec{
		{Name: "Cali", Avatar: "Cali_avatar.png"},
		{Name: "Zach", Avatar: "Zach_avatar.png"},
	})
	require.NoError(t, os.Remove(nc.StagedAvatarPath(nc.Students[1].AvatarID)))

	_, err := s.CreateClass(ctx, nc)
	require.Error(t, err)
	assert.True(t, nc.Closed())

	classes, err := s.GetClasses(ctx)
	require.NoError(t, err)
	assert.Empty(t, classes)

	var avatars, students int64
	require.NoError(t, s.db.Model(&AvatarModel{}).Count(&avatars).Error)
	require.NoError(t, s.db.Model(&StudentModel{}).Count(&students).Error)
	assert.Zero(t, avatars)
	assert.Zero(t, students)
}

func TestCreateClassRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.CreateClass(ctx, storetest.BuildNewClass(t, "8A", nil))
	require.NoError(t, err)
	_, err = s.CreateClass(ctx, storetest.BuildNewClass(t, "8A", nil))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestChartAndImage(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	id, err := s.CreateClass(ctx, storetest.BuildNewClass(t, "9C", []storetest.StudentSpec{{Name: "Ada"}, {Name: "Ken"}}))
	require.NoError(t, err)
	class, err := s.LoadClass(ctx, id)
	require.NoError(t, err)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	chart := &models.ChartData{
		ClassName:       class.Name,
		Name:            "Term 1",
		DefaultFilename: "9C - Term 1",
		Date:            &date,
		Params:          models.ChartParams{"sort": "descending", "columns": 3.0},
		Scores:          map[float64][]*models.Student{12.5: {class.Students[0]}, 7: {class.Students[1]}},
	}
	require.NoError(t, s.CreateChart(ctx, chart))
	require.False(t, chart.ID.IsZero())

	var scores []ScoreModel
	require.NoError(t, s.db.Order("value").Find(&scores).Error)
	require.Len(t, scores, 2)
	assert.Equal(t, 7.0, scores[0].Value)
	assert.Equal(t, 12.5, scores[1].Value)

	path, err := s.SaveChartImage(ctx, chart, []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, s.storage.Path(filepath.Join(chartImageDir, "9C", "9C_-_Term_1.png")), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	var row ChartModel
	chartID, _ := parseID(chart.ID)
	require.NoError(t, s.db.First(&row, chartID).Error)
	assert.Equal(t, []byte("png"), row.Image)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Params, &params))
	assert.Equal(t, "descending", params["sort"])
	assert.Equal(t, 3.0, params["columns"])
}

func TestCreateChartRequiresStoredStudents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	student, err := models.NewStudent("Unsaved")
	require.NoError(t, err)
	chart := &models.ChartData{ClassName: "c", Name: "n", DefaultFilename: "n", Scores: map[float64][]*models.Student{1: {student}}}
	err = s.CreateChart(context.Background(), chart)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSaveChartImageRequiresCreatedChart(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	chart := &models.ChartData{ClassName: "c", Name: "n", DefaultFilename: "n"}

	_, err := s.SaveChartImage(ctx, chart, []byte("png"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	chart.ID = "77"
	_, err = s.SaveChartImage(ctx, chart, []byte("png"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoFileExists(t, filepath.Join(s.storage.BaseDir(), chartImageDir, "c", "n.png"))
}

func TestUpdateClassNotImplemented(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	err := s.UpdateClass(context.Background(), &models.Class{Name: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrNotImplemented))
}

func TestGetAvatarPathFollowsStoredBlob(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	avatar := AvatarModel{Image: []byte("first")}
	require.NoError(t, s.db.Create(&avatar).Error)
	id := models.ID(strconv.FormatInt(avatar.ID, 10))

	first, err := s.GetAvatarPath(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.db.Model(&avatar).Update("image", []byte("second")).Error)
	second, err := s.GetAvatarPath(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.NoFileExists(t, first)
	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, s.db.Delete(&avatar).Error)
	path, err := s.GetAvatarPath(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, s.defaultAvatar, path)
	assert.NoFileExists(t, second)
}

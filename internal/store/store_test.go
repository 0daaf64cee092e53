package store

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classchart/internal/models"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/metrics"
)

type databaseStub struct {
	classes    []models.ClassIdentifier
	avatarPath string
	updateErr  error
	closed     bool
}

func (s *databaseStub) DefaultAvatarPath() string { return "default.png" }

func (s *databaseStub) GetClasses(ctx context.Context) ([]models.ClassIdentifier, error) {
	return s.classes, nil
}

func (s *databaseStub) ClassNameExists(ctx context.Context, name string) (bool, error) {
	for _, c := range s.classes {
		if c.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *databaseStub) CreateClass(ctx context.Context, newClass *models.NewClass) (models.ID, error) {
	return "1", newClass.Close()
}

func (s *databaseStub) LoadClass(ctx context.Context, classID models.ID) (*models.Class, error) {
	return &models.Class{ID: classID, Name: "loaded"}, nil
}

func (s *databaseStub) UpdateClass(ctx context.Context, class *models.Class) error {
	return s.updateErr
}

func (s *databaseStub) GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error) {
	if avatarID.IsZero() {
		return s.DefaultAvatarPath(), nil
	}
	return s.avatarPath, nil
}

func (s *databaseStub) CreateChart(ctx context.Context, chart *models.ChartData) error {
	return nil
}

func (s *databaseStub) SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error) {
	return "chart.png", nil
}

func (s *databaseStub) Close() error {
	s.closed = true
	return nil
}

type resolverStub struct {
	databaseStub
}

func (s *resolverStub) GetAvatarPathClassFilename(ctx context.Context, className string, avatarFilename string) (string, error) {
	return className + "/" + avatarFilename, nil
}

func TestWithMetricsCountsResults(t *testing.T) {
	m := metrics.NewStoreMetrics()
	inner := &databaseStub{
		classes:   []models.ClassIdentifier{models.NewClassIdentifier("1", "A")},
		updateErr: appErrors.Clone(appErrors.ErrNotImplemented, "no updates"),
	}
	db := WithMetrics(inner, "sql", m)
	ctx := context.Background()

	classes, err := db.GetClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 1)

	exists, err := db.ClassNameExists(ctx, "A")
	require.NoError(t, err)
	assert.True(t, exists)

	err = db.UpdateClass(ctx, &models.Class{Name: "A"})
	require.Error(t, err)

	require.NoError(t, db.Close())
	assert.True(t, inner.closed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("sql", "get_classes", metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("sql", "update_class", metrics.ResultNotImplemented)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("sql", "close", metrics.ResultOK)))

	_, isResolver := db.(ClassAvatarResolver)
	assert.False(t, isResolver)
	assert.Equal(t, "sql", db.(Named).BackendName())
}

func TestWithMetricsKeepsClassAvatarResolver(t *testing.T) {
	m := metrics.NewStoreMetrics()
	db := WithMetrics(&resolverStub{}, "json", m)

	resolver, ok := db.(ClassAvatarResolver)
	require.True(t, ok)
	path, err := resolver.GetAvatarPathClassFilename(context.Background(), "7B", "a.png")
	require.NoError(t, err)
	assert.Equal(t, "7B/a.png", path)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("json", "get_avatar_path_class_filename", metrics.ResultOK)))
}

func TestWithMetricsNilMetricsReturnsInner(t *testing.T) {
	inner := &databaseStub{}
	assert.Same(t, inner, WithMetrics(inner, "json", nil))
}

func TestResolveStudentAvatar(t *testing.T) {
	ctx := context.Background()
	class := &models.Class{Name: "7B"}
	withAvatar := &models.Student{Name: "Cali", AvatarID: "cali.png"}

	path, err := ResolveStudentAvatar(ctx, &resolverStub{}, class, withAvatar)
	require.NoError(t, err)
	assert.Equal(t, "7B/cali.png", path)

	path, err = ResolveStudentAvatar(ctx, &databaseStub{avatarPath: "cache/avatar_3.png"}, class, withAvatar)
	require.NoError(t, err)
	assert.Equal(t, "cache/avatar_3.png", path)

	path, err = ResolveStudentAvatar(ctx, &databaseStub{}, class, &models.Student{Name: "Zach"})
	require.NoError(t, err)
	assert.Equal(t, "default.png", path)
}

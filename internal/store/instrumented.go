package store

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/classchart/internal/models"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
	"github.com/noah-isme/classchart/pkg/metrics"
)

// WithMetrics decorates db so every operation is counted and timed. The
// class-scoped avatar lookup stays available only when db supports it.
func WithMetrics(db Database, backend string, m *metrics.StoreMetrics) Database {
	if m == nil {
		return db
	}
	base := &instrumented{inner: db, backend: backend, metrics: m}
	if resolver, ok := db.(ClassAvatarResolver); ok {
		return &instrumentedResolver{instrumented: base, resolver: resolver}
	}
	return base
}

type instrumented struct {
	inner   Database
	backend string
	metrics *metrics.StoreMetrics
}

func (d *instrumented) observe(operation string, started time.Time, err error) {
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrNotImplemented):
		result = metrics.ResultNotImplemented
	default:
		result = metrics.ResultError
	}
	d.metrics.Observe(d.backend, operation, result, started)
}

func (d *instrumented) BackendName() string { return d.backend }

func (d *instrumented) DefaultAvatarPath() string { return d.inner.DefaultAvatarPath() }

func (d *instrumented) GetClasses(ctx context.Context) ([]models.ClassIdentifier, error) {
	started := time.Now()
	classes, err := d.inner.GetClasses(ctx)
	d.observe("get_classes", started, err)
	return classes, err
}

func (d *instrumented) ClassNameExists(ctx context.Context, name string) (bool, error) {
	started := time.Now()
	exists, err := d.inner.ClassNameExists(ctx, name)
	d.observe("class_name_exists", started, err)
	return exists, err
}

func (d *instrumented) CreateClass(ctx context.Context, newClass *models.NewClass) (models.ID, error) {
	started := time.Now()
	id, err := d.inner.CreateClass(ctx, newClass)
	d.observe("create_class", started, err)
	return id, err
}

func (d *instrumented) LoadClass(ctx context.Context, classID models.ID) (*models.Class, error) {
	started := time.Now()
	class, err := d.inner.LoadClass(ctx, classID)
	d.observe("load_class", started, err)
	return class, err
}

func (d *instrumented) UpdateClass(ctx context.Context, class *models.Class) error {
	started := time.Now()
	err := d.inner.UpdateClass(ctx, class)
	d.observe("update_class", started, err)
	return err
}

func (d *instrumented) GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error) {
	started := time.Now()
	path, err := d.inner.GetAvatarPath(ctx, avatarID)
	d.observe("get_avatar_path", started, err)
	return path, err
}

func (d *instrumented) CreateChart(ctx context.Context, chart *models.ChartData) error {
	started := time.Now()
	err := d.inner.CreateChart(ctx, chart)
	d.observe("create_chart", started, err)
	return err
}

func (d *instrumented) SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error) {
	started := time.Now()
	path, err := d.inner.SaveChartImage(ctx, chart, image)
	d.observe("save_chart_image", started, err)
	return path, err
}

func (d *instrumented) Close() error {
	started := time.Now()
	err := d.inner.Close()
	d.observe("close", started, err)
	return err
}

type instrumentedResolver struct {
	*instrumented
	resolver ClassAvatarResolver
}

func (d *instrumentedResolver) GetAvatarPathClassFilename(ctx context.Context, className string, avatarFilename string) (string, error) {
	started := time.Now()
	path, err := d.resolver.GetAvatarPathClassFilename(ctx, className, avatarFilename)
	d.observe("get_avatar_path_class_filename", started, err)
	return path, err
}

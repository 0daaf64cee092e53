// Package store defines the persistence contract shared by every backend.
// Sub packages implement it with different storage strategies.
package store

import (
	"context"

	"github.com/noah-isme/classchart/internal/models"
)

// Database persists rosters and chart data.
type Database interface {
	// DefaultAvatarPath is returned whenever an avatar is missing or cannot be resolved.
	DefaultAvatarPath() string
	// GetClasses enumerates every stored class, stable for a given backend state.
	GetClasses(ctx context.Context) ([]models.ClassIdentifier, error)
	// ClassNameExists must be checked by callers before CreateClass.
	ClassNameExists(ctx context.Context, name string) (bool, error)
	// CreateClass assigns ids, persists the class and commits staged avatars.
	// It releases the staging area of newClass on every path.
	CreateClass(ctx context.Context, newClass *models.NewClass) (models.ID, error)
	LoadClass(ctx context.Context, classID models.ID) (*models.Class, error)
	// UpdateClass may fail with errors.ErrNotImplemented.
	UpdateClass(ctx context.Context, class *models.Class) error
	GetAvatarPath(ctx context.Context, avatarID models.ID) (string, error)
	CreateChart(ctx context.Context, chart *models.ChartData) error
	// SaveChartImage stores the rendered image and returns the path of the
	// application-owned copy.
	SaveChartImage(ctx context.Context, chart *models.ChartData, image []byte) (string, error)
	// Close flushes caches and releases handles.
	Close() error
}

// ClassAvatarResolver is implemented by backends whose avatar ids are only
// meaningful relative to a class.
type ClassAvatarResolver interface {
	GetAvatarPathClassFilename(ctx context.Context, className string, avatarFilename string) (string, error)
}

// Named is implemented by backends that report their configuration name.
type Named interface {
	BackendName() string
}

// ResolveStudentAvatar picks the class-scoped or global avatar lookup
// depending on what db supports.
func ResolveStudentAvatar(ctx context.Context, db Database, class *models.Class, student *models.Student) (string, error) {
	if student == nil || !student.HasAvatar() {
		return db.DefaultAvatarPath(), nil
	}
	if resolver, ok := db.(ClassAvatarResolver); ok {
		return resolver.GetAvatarPathClassFilename(ctx, class.Name, string(student.AvatarID))
	}
	return db.GetAvatarPath(ctx, student.AvatarID)
}

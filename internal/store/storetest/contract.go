// Package storetest holds the behaviour every store.Database must share,
// run by each backend's tests against a fresh instance.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classchart/internal/models"
	"github.com/noah-isme/classchart/internal/store"
	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

// Harness adapts a backend to the contract suite.
type Harness struct {
	// Open returns a fresh, empty backend. The suite closes it.
	Open func(t *testing.T) store.Database
	// MissingClassID is an id in the backend's format that was never assigned.
	MissingClassID models.ID
	// MissingAvatarID is an avatar id in the backend's format that does not resolve.
	MissingAvatarID models.ID
}

// StudentSpec describes one student of a fixture class.
type StudentSpec struct {
	Name   string
	Avatar string
}

// ConcreteRoster is the fifteen-student roster with avatars at positions 0, 3, 8 and 12.
func ConcreteRoster() []StudentSpec {
	names := []string{"Cali", "Ben", "Priya", "Zach", "Omar", "Lena", "Tom", "Yuki",
		"Ashley", "Noor", "Ivan", "Maya", "Danielle", "Femi", "Ruth"}
	avatars := map[int]string{0: "Cali_avatar.png", 3: "Zach_avatar.png", 8: "Ashley_avatar.png", 12: "Danielle.png"}
	roster := make([]StudentSpec, len(names))
	for i, name := range names {
		roster[i] = StudentSpec{Name: name, Avatar: avatars[i]}
	}
	return roster
}

// AvatarBytes is the fixture content written for an avatar filename.
func AvatarBytes(filename string) []byte {
	return []byte("avatar-bytes:" + filename)
}

// BuildNewClass stages a class with the given students; avatar source files
// are generated in a temporary directory.
func BuildNewClass(t *testing.T, name string, roster []StudentSpec) *models.NewClass {
	t.Helper()
	nc, err := models.BeginNewClass(name, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })

	sources := t.TempDir()
	for _, spec := range roster {
		var opts []models.StudentOption
		if spec.Avatar != "" {
			src := filepath.Join(sources, spec.Avatar)
			require.NoError(t, os.WriteFile(src, AvatarBytes(spec.Avatar), 0o644))
			avatarID, err := nc.StageAvatar(src)
			require.NoError(t, err)
			opts = append(opts, models.WithAvatar(avatarID))
		}
		student, err := models.NewStudent(spec.Name, opts...)
		require.NoError(t, err)
		require.NoError(t, nc.AddStudent(student))
	}
	return nc
}

// Run executes the contract suite.
func Run(t *testing.T, h Harness) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, h) })
	t.Run("ConcreteScenario", func(t *testing.T) { testConcreteScenario(t, h) })
	t.Run("NameUniqueness", func(t *testing.T) { testNameUniqueness(t, h) })
	t.Run("EnumerationOrder", func(t *testing.T) { testEnumerationOrder(t, h) })
	t.Run("DefaultAvatarFallback", func(t *testing.T) { testDefaultAvatarFallback(t, h) })
	t.Run("AvatarsResolveToStagedBytes", func(t *testing.T) { testAvatarsResolve(t, h) })
	t.Run("StagingReleased", func(t *testing.T) { testStagingReleased(t, h) })
	t.Run("LoadMissingClass", func(t *testing.T) { testLoadMissing(t, h) })
}

func open(t *testing.T, h Harness) store.Database {
	t.Helper()
	db := h.Open(t)
	require.NotEmpty(t, db.DefaultAvatarPath())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func create(t *testing.T, db store.Database, name string, roster []StudentSpec) models.ID {
	t.Helper()
	id, err := db.CreateClass(context.Background(), BuildNewClass(t, name, roster))
	require.NoError(t, err)
	require.False(t, id.IsZero())
	return id
}

func assertRoster(t *testing.T, want []StudentSpec, got *models.Class) {
	t.Helper()
	require.Len(t, got.Students, len(want))
	for i, spec := range want {
		assert.Equal(t, spec.Name, got.Students[i].Name, "student %d", i)
		assert.Equal(t, spec.Avatar != "", got.Students[i].HasAvatar(), "avatar presence of %s", spec.Name)
	}
}

func testRoundTrip(t *testing.T, h Harness) {
	db := open(t, h)
	ctx := context.Background()
	roster := []StudentSpec{{Name: "Ada", Avatar: "ada.png"}, {Name: "Grace"}, {Name: "Linus", Avatar: "linus.jpg"}, {Name: "Ken"}}

	id := create(t, db, "Round Trip 9C", roster)

	loaded, err := db.LoadClass(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Round Trip 9C", loaded.Name)
	assert.Equal(t, id, loaded.ID)
	assertRoster(t, roster, loaded)

	empty := create(t, db, "Empty", nil)
	loaded, err = db.LoadClass(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, loaded.Students)
}

func testConcreteScenario(t *testing.T, h Harness) {
	db := open(t, h)
	roster := ConcreteRoster()
	id := create(t, db, "test_class", roster)

	loaded, err := db.LoadClass(context.Background(), id)
	require.NoError(t, err)
	assertRoster(t, roster, loaded)
	assert.Equal(t, 4, loaded.AvatarCount())
	for _, i := range []int{0, 3, 8, 12} {
		assert.True(t, loaded.Students[i].HasAvatar(), "position %d", i)
	}
}

func testNameUniqueness(t *testing.T, h Harness) {
	db := open(t, h)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		create(t, db, name, []StudentSpec{{Name: "s-" + name}})
	}

	exists, err := db.ClassNameExists(ctx, "B")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.ClassNameExists(ctx, "D")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testEnumerationOrder(t *testing.T, h Harness) {
	db := open(t, h)
	want := []string{"one class", "another", "so many"}
	for _, name := range want {
		create(t, db, name, nil)
	}

	classes, err := db.GetClasses(context.Background())
	require.NoError(t, err)
	got := make([]string, 0, len(classes))
	for _, c := range classes {
		got = append(got, c.Name())
		assert.False(t, c.ID().IsZero())
	}
	assert.Equal(t, want, got)
}

func testDefaultAvatarFallback(t *testing.T, h Harness) {
	db := open(t, h)
	ctx := context.Background()

	path, err := db.GetAvatarPath(ctx, models.NoID)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultAvatarPath(), path)

	path, err = db.GetAvatarPath(ctx, h.MissingAvatarID)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultAvatarPath(), path)
}

func testAvatarsResolve(t *testing.T, h Harness) {
	db := open(t, h)
	ctx := context.Background()
	roster := []StudentSpec{{Name: "Cali", Avatar: "Cali_avatar.png"}, {Name: "Ben"}}
	id := create(t, db, "avatars", roster)

	loaded, err := db.LoadClass(ctx, id)
	require.NoError(t, err)

	path, err := store.ResolveStudentAvatar(ctx, db, loaded, loaded.Students[0])
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, AvatarBytes("Cali_avatar.png"), data)

	path, err = store.ResolveStudentAvatar(ctx, db, loaded, loaded.Students[1])
	require.NoError(t, err)
	assert.Equal(t, db.DefaultAvatarPath(), path)
}

func testStagingReleased(t *testing.T, h Harness) {
	db := open(t, h)
	nc := BuildNewClass(t, "staged", []StudentSpec{{Name: "Cali", Avatar: "Cali_avatar.png"}})
	staging := nc.TempDir()
	require.DirExists(t, staging)

	_, err := db.CreateClass(context.Background(), nc)
	require.NoError(t, err)
	assert.NoDirExists(t, staging)
	assert.True(t, nc.Closed())
}

func testLoadMissing(t *testing.T, h Harness) {
	db := open(t, h)
	_, err := db.LoadClass(context.Background(), h.MissingClassID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound), fmt.Sprintf("unexpected error: %v", err))
}

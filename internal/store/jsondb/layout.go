package jsondb

import (
	"path/filepath"

	"github.com/noah-isme/classchart/internal/models"
)

const (
	classDataDir      = "class_data"
	avatarsDir        = "avatars"
	chartDataDir      = "chart_data"
	registryIndexFile = "class_registry.index"

	// ClassDataExt marks a serialized class document.
	ClassDataExt = ".cld"
	// ChartDataExt marks a serialized chart document.
	ChartDataExt = ".cdf"
	chartImageExt = ".png"
)

// Paths below are relative to the app data root. Class folders and files are
// named by the path-safe key; the display name lives in the class document.

func classKey(className string) string {
	return models.PathSafe(className)
}

func classDir(className string) string {
	return filepath.Join(classDataDir, classKey(className))
}

func classFile(className string) string {
	return filepath.Join(classDir(className), classKey(className)+ClassDataExt)
}

func classAvatarDir(className string) string {
	return filepath.Join(classDir(className), avatarsDir)
}

func classAvatarFile(className, filename string) string {
	return filepath.Join(classAvatarDir(className), filename)
}

func classChartDir(className string) string {
	return filepath.Join(classDir(className), chartDataDir)
}

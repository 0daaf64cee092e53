package jsondb

import (
	"fmt"
	"strconv"

	"github.com/noah-isme/classchart/internal/models"
)

type classDocument struct {
	Name     string            `json:"name"`
	Students []studentDocument `json:"students"`
}

type studentDocument struct {
	Name           string `json:"name"`
	AvatarFilename string `json:"avatar_filename,omitempty"`
}

type chartDocument struct {
	ClassName            string                 `json:"class_name"`
	ChartName            string                 `json:"chart_name"`
	ChartDefaultFilename string                 `json:"chart_default_filename"`
	ChartParams          map[string]interface{} `json:"chart_params"`
	ScoreAvatarDict      map[string][]string    `json:"score-avatar_dict"`
}

// ChartDocument is a chart read back from disk with numeric score keys.
type ChartDocument struct {
	ClassName       string
	ChartName       string
	DefaultFilename string
	Params          models.ChartParams
	ScoreAvatars    map[float64][]string
}

func newClassDocument(c *models.Class) classDocument {
	doc := classDocument{Name: c.Name, Students: make([]studentDocument, 0, len(c.Students))}
	for _, s := range c.Students {
		doc.Students = append(doc.Students, studentDocument{
			Name:           s.Name,
			AvatarFilename: string(s.AvatarID),
		})
	}
	return doc
}

func (d classDocument) toClass() *models.Class {
	class := &models.Class{
		ID:       models.ID(d.Name),
		Name:     d.Name,
		Students: make([]*models.Student, 0, len(d.Students)),
	}
	for _, s := range d.Students {
		class.Students = append(class.Students, &models.Student{
			Name:     s.Name,
			AvatarID: models.ID(s.AvatarFilename),
		})
	}
	return class
}

func (d chartDocument) toChartDocument() (*ChartDocument, error) {
	out := &ChartDocument{
		ClassName:       d.ClassName,
		ChartName:       d.ChartName,
		DefaultFilename: d.ChartDefaultFilename,
		Params:          models.ChartParams(d.ChartParams),
		ScoreAvatars:    make(map[float64][]string, len(d.ScoreAvatarDict)),
	}
	for key, avatars := range d.ScoreAvatarDict {
		score, err := ParseScoreKey(key)
		if err != nil {
			return nil, err
		}
		out.ScoreAvatars[score] = append(out.ScoreAvatars[score], avatars...)
	}
	return out, nil
}

// ScoreKey formats a score as a JSON object key.
func ScoreKey(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// ParseScoreKey reads a score key written by ScoreKey or by the legacy
// writer ("5.0").
func ParseScoreKey(key string) (float64, error) {
	score, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score key %q: %w", key, err)
	}
	return score, nil
}

package models

import (
	"sort"
	"time"

	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

// ChartParams is the free-form rendering option bag.
type ChartParams map[string]interface{}

// ChartData describes one chart of a class: its score mapping and the
// rendering parameters the image was drawn with.
type ChartData struct {
	ID              ID                    `json:"-"`
	ClassID         ID                    `json:"-"`
	ClassName       string                `validate:"required,max=255"`
	Name            string                `validate:"required,max=255"`
	DefaultFilename string                `validate:"required"`
	Params          ChartParams
	Scores          map[float64][]*Student
	Date            *time.Time
}

// SortedScores returns the score values in ascending order.
func (c *ChartData) SortedScores() []float64 {
	scores := make([]float64, 0, len(c.Scores))
	for score := range c.Scores {
		scores = append(scores, score)
	}
	sort.Float64s(scores)
	return scores
}

// Validate checks the identifying fields.
func (c *ChartData) Validate() error {
	if c == nil {
		return appErrors.Clone(appErrors.ErrValidation, "chart data is nil")
	}
	if err := validate.Struct(c); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid chart data")
	}
	return nil
}

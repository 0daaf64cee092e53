package sqldb

import (
	"database/sql"
	"strconv"

	"github.com/noah-isme/classchart/internal/models"
)

type classRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type studentRow struct {
	ID       int64         `db:"id"`
	Name     string        `db:"name"`
	ClassID  int64         `db:"class_id"`
	AvatarID sql.NullInt64 `db:"avatar_id"`
}

func (r studentRow) toStudent() *models.Student {
	student := &models.Student{ID: formatID(r.ID), Name: r.Name}
	if r.AvatarID.Valid {
		student.AvatarID = formatID(r.AvatarID.Int64)
	}
	return student
}

func formatID(id int64) models.ID {
	return models.ID(strconv.FormatInt(id, 10))
}

func parseID(id models.ID) (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

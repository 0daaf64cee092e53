package ormdb

import (
	"time"

	"gorm.io/datatypes"
)

type ClassModel struct {
	ID       int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name     string         `gorm:"column:name;type:varchar(255);not null"`
	Students []StudentModel `gorm:"foreignKey:ClassID"`
}

func (ClassModel) TableName() string {
	return "class"
}

type AvatarModel struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Image []byte `gorm:"column:image;not null"`
}

func (AvatarModel) TableName() string {
	return "avatar"
}

type StudentModel struct {
	ID       int64        `gorm:"column:id;primaryKey;autoIncrement"`
	Name     string       `gorm:"column:name;type:varchar(255);not null"`
	ClassID  int64        `gorm:"column:class_id;not null;index"`
	AvatarID *int64       `gorm:"column:avatar_id"`
	Avatar   *AvatarModel `gorm:"foreignKey:AvatarID"`
}

func (StudentModel) TableName() string {
	return "student"
}

// ChartModel keeps the rendering parameters and the rendered image on the
// row itself.
type ChartModel struct {
	ID     int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name   string         `gorm:"column:name;type:varchar(255);not null"`
	Date   *time.Time     `gorm:"column:date"`
	Params datatypes.JSON `gorm:"column:params"`
	Image  []byte         `gorm:"column:image"`
	Scores []ScoreModel   `gorm:"foreignKey:ChartID"`
}

func (ChartModel) TableName() string {
	return "chart"
}

type ScoreModel struct {
	ID        int64         `gorm:"column:id;primaryKey;autoIncrement"`
	ChartID   int64         `gorm:"column:chart_id;not null;index"`
	StudentID int64         `gorm:"column:student_id;not null"`
	Student   *StudentModel `gorm:"foreignKey:StudentID"`
	Value     float64       `gorm:"column:value;not null"`
}

func (ScoreModel) TableName() string {
	return "score"
}

func allModels() []interface{} {
	return []interface{}{&ClassModel{}, &AvatarModel{}, &StudentModel{}, &ChartModel{}, &ScoreModel{}}
}

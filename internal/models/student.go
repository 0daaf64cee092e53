package models

import (
	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

// Student is a roster member. AvatarID is a staged/JSON filename or a SQL
// avatar key depending on the backend; NoID means no avatar.
type Student struct {
	ID       ID     `json:"-"`
	Name     string `json:"name" validate:"required,max=255"`
	AvatarID ID     `json:"-"`
}

// StudentOption customises a student at construction.
type StudentOption func(*Student)

// WithAvatar attaches an avatar reference.
func WithAvatar(avatarID ID) StudentOption {
	return func(s *Student) { s.AvatarID = avatarID }
}

// WithID sets a backend-assigned identifier.
func WithID(id ID) StudentOption {
	return func(s *Student) { s.ID = id }
}

// NewStudent builds a validated student.
func NewStudent(name string, opts ...StudentOption) (*Student, error) {
	s := &Student{Name: name}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// HasAvatar reports whether the student references an avatar.
func (s *Student) HasAvatar() bool {
	return s != nil && !s.AvatarID.IsZero()
}

// Validate enforces the non-empty, at most 255 character name.
func (s *Student) Validate() error {
	if err := validate.Struct(s); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid student")
	}
	return nil
}

package models

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/classchart/pkg/errors"
)

var validate = validator.New()

// ID is an opaque identifier minted by a backend. Only the backend that
// produced an ID interprets its contents.
type ID string

// NoID marks an unassigned identifier or a student without an avatar.
const NoID ID = ""

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return id == NoID }

func (id ID) String() string { return string(id) }

// ClassIdentifier is the (id, name) pair exposed to class pickers.
type ClassIdentifier struct {
	id   ID
	name string
}

// NewClassIdentifier builds an immutable identifier pair.
func NewClassIdentifier(id ID, name string) ClassIdentifier {
	return ClassIdentifier{id: id, name: name}
}

func (c ClassIdentifier) ID() ID       { return c.id }
func (c ClassIdentifier) Name() string { return c.name }

// Class is a named roster of students in display order.
type Class struct {
	ID       ID         `json:"-"`
	Name     string     `json:"name" validate:"required,max=255"`
	Students []*Student `json:"students" validate:"dive"`
}

// AddStudent appends a validated student to the roster.
func (c *Class) AddStudent(s *Student) error {
	if s == nil {
		return appErrors.Clone(appErrors.ErrValidation, "add student: student is nil")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	c.Students = append(c.Students, s)
	return nil
}

// AddStudents appends each student in order, stopping at the first invalid one.
func (c *Class) AddStudents(students ...*Student) error {
	for _, s := range students {
		if err := c.AddStudent(s); err != nil {
			return err
		}
	}
	return nil
}

// PathSafeName is the class name reduced to a filesystem-safe component.
func (c *Class) PathSafeName() string {
	return PathSafe(c.Name)
}

// StudentByName returns the first student with the given name.
func (c *Class) StudentByName(name string) (*Student, bool) {
	for _, s := range c.Students {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// AvatarCount returns how many students reference an avatar.
func (c *Class) AvatarCount() int {
	n := 0
	for _, s := range c.Students {
		if s.HasAvatar() {
			n++
		}
	}
	return n
}

// Validate checks the class name and every student.
func (c *Class) Validate() error {
	if c == nil {
		return appErrors.Clone(appErrors.ErrValidation, "class is nil")
	}
	for i, s := range c.Students {
		if s == nil {
			return appErrors.Clone(appErrors.ErrValidation, "invalid class: nil student at position "+strconv.Itoa(i))
		}
	}
	if err := validate.Struct(c); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid class")
	}
	return nil
}

// PathSafe keeps letters, digits and -_' , turns spaces into underscores and
// drops everything else. Trailing whitespace is trimmed first.
func PathSafe(name string) string {
	trimmed := strings.TrimRightFunc(name, unicode.IsSpace)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		case r == '-', r == '_', r == '\'':
			b.WriteRune(r)
		}
	}
	return b.String()
}

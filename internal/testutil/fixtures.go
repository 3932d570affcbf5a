// Package testutil carries fixtures shared by the component test suites,
// the way the teacher's internal/testutil/fixtures.go carries fixture
// builders for Linear entities: a populated test Space plus one FieldDef
// constructor per domain.FieldType, so each package's tests build schemas
// by composition instead of hand-rolling their own literal.
package testutil

import "github.com/spacenote/spacenote/internal/domain"

// Space returns a minimal populated test space: slug "tasks", members
// alice and bob, and the reserved all-notes filter. opts customize it
// further (fields, templates, messenger settings).
func Space(opts ...func(*domain.Space)) *domain.Space {
	s := &domain.Space{
		Slug:    "tasks",
		Members: []string{"alice", "bob"},
		Filters: []domain.FilterDef{{Name: domain.AllFilterName}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithSlug(slug string) func(*domain.Space) {
	return func(s *domain.Space) { s.Slug = slug }
}

func WithMembers(members ...string) func(*domain.Space) {
	return func(s *domain.Space) { s.Members = members }
}

func WithFields(fields ...domain.FieldDef) func(*domain.Space) {
	return func(s *domain.Space) { s.Fields = append(s.Fields, fields...) }
}

func WithEditableOnComment(names ...string) func(*domain.Space) {
	return func(s *domain.Space) { s.EditableFieldsOnComment = append(s.EditableFieldsOnComment, names...) }
}

func WithTelegram(settings domain.MessengerSettings) func(*domain.Space) {
	return func(s *domain.Space) { s.Telegram = &settings }
}

func WithTemplates(templates map[string]string) func(*domain.Space) {
	return func(s *domain.Space) { s.Templates = templates }
}

// StringField, NumericIntField, SelectField, BooleanField, TagsField,
// UserField, DatetimeField and ImageField build a FieldDef of the named
// type, one constructor per domain.FieldType, for composing into Space
// via WithFields.

func StringField(name string, required bool) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldString, Required: required}
}

func NumericIntField(name string) domain.FieldDef {
	return domain.FieldDef{
		Name: name, Type: domain.FieldNumeric,
		Options: domain.FieldOptions{Numeric: &domain.NumericOptions{Kind: domain.NumericInt}},
	}
}

func SelectField(name string, values ...string) domain.FieldDef {
	return domain.FieldDef{
		Name: name, Type: domain.FieldSelect,
		Options: domain.FieldOptions{Select: &domain.SelectOptions{Values: values}},
	}
}

func BooleanField(name string) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldBoolean}
}

func TagsField(name string) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldTags}
}

func UserField(name string) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldUser}
}

func DatetimeField(name string) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldDatetime}
}

func ImageField(name string) domain.FieldDef {
	return domain.FieldDef{Name: name, Type: domain.FieldImage}
}

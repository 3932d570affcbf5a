// Package filter is C4, the filter engine (spec.md §4.2): FilterDef/
// Condition validation, the adhoc query-string grammar, and compilation of a
// resolved (conditions, sort) pair into a docstore.Query.
package filter

import (
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// ParseFieldRef parses "note.number", "note.author", "note.created_at",
// "note.edited_at", "note.activity_at" or "note.fields.<name>".
func ParseFieldRef(path string) (domain.FieldRef, error) {
	switch domain.NoteRef(path) {
	case domain.RefNumber, domain.RefAuthor, domain.RefCreatedAt, domain.RefEditedAt, domain.RefActivityAt:
		return domain.FieldRef{Builtin: domain.NoteRef(path)}, nil
	}
	if name, ok := strings.CutPrefix(path, domain.FieldRefPrefix); ok && name != "" {
		return domain.FieldRef{FieldName: name}, nil
	}
	return domain.FieldRef{}, apperr.Validationf("invalid field reference %q", path)
}

// resolveFieldDef returns a synthetic FieldDef describing a FieldRef's type
// so built-ins and custom fields can be validated/parsed through the same
// internal/field.Registry calls.
func resolveFieldDef(ref domain.FieldRef, space *domain.Space) (domain.FieldDef, error) {
	if ref.IsCustomField() {
		fd := space.FieldByName(ref.FieldName)
		if fd == nil {
			return domain.FieldDef{}, apperr.Validationf("unknown field %q", ref.FieldName)
		}
		return *fd, nil
	}
	switch ref.Builtin {
	case domain.RefNumber:
		return domain.FieldDef{Name: "number", Type: domain.FieldNumeric, Options: domain.FieldOptions{Numeric: &domain.NumericOptions{Kind: domain.NumericInt}}}, nil
	case domain.RefAuthor:
		return domain.FieldDef{Name: "author", Type: domain.FieldUser}, nil
	case domain.RefCreatedAt, domain.RefEditedAt, domain.RefActivityAt:
		return domain.FieldDef{Name: string(ref.Builtin), Type: domain.FieldDatetime}, nil
	default:
		return domain.FieldDef{}, apperr.Validationf("invalid field reference %q", ref.String())
	}
}

// operatorsFor returns the allowed operator set for ref's resolved type.
func operatorsFor(ref domain.FieldRef, space *domain.Space) ([]domain.Op, error) {
	fd, err := resolveFieldDef(ref, space)
	if err != nil {
		return nil, err
	}
	return domain.OperatorsByType[fd.Type], nil
}

func opAllowed(op domain.Op, allowed []domain.Op) bool {
	for _, a := range allowed {
		if a == op {
			return true
		}
	}
	return false
}

// storedFieldPath returns the dot-path into a stored note document that a
// FieldRef's built-in or sort use addresses. Custom fields store a typed
// envelope (see domain.TypedValue), so sorting/built-in comparisons use the
// envelope's "str"/"int" sub-field per valueSubPath; this is only exact for
// built-ins, which are stored as bare scalars on Note itself.
func storedFieldPath(ref domain.FieldRef) string {
	if ref.IsCustomField() {
		return "fields." + ref.FieldName
	}
	switch ref.Builtin {
	case domain.RefNumber:
		return "number"
	case domain.RefAuthor:
		return "author"
	case domain.RefCreatedAt:
		return "created_at"
	case domain.RefEditedAt:
		return "edited_at"
	case domain.RefActivityAt:
		return "activity_at"
	default:
		return ""
	}
}

// valueSubPath returns the dot-path to a custom field's comparable scalar
// inside its stored TypedValue envelope, selected by fd's type (and, for
// numeric, its kind) so the envelope's Type is always retained on disk
// rather than collapsed to a bare value.
func valueSubPath(ref domain.FieldRef, fd domain.FieldDef) string {
	if !ref.IsCustomField() {
		return storedFieldPath(ref)
	}
	base := "fields." + ref.FieldName
	switch fd.Type {
	case domain.FieldBoolean:
		return base + ".bool"
	case domain.FieldNumeric:
		if fd.Options.Numeric != nil && fd.Options.Numeric.Kind == domain.NumericInt {
			return base + ".int"
		}
		return base + ".float"
	case domain.FieldTags:
		return base + ".tags"
	default: // string, select, user, datetime
		return base + ".str"
	}
}

// nullFlagPath addresses a custom field's null marker directly (spec.md
// §4.1: every current field is always present in a note's fields map, so
// absence never needs to be distinguished from an explicit null).
func nullFlagPath(ref domain.FieldRef) string {
	if !ref.IsCustomField() {
		return storedFieldPath(ref)
	}
	return "fields." + ref.FieldName + ".null"
}

// Package field is C1, the field registry (spec.md §4.1): one validator per
// FieldType, each exposing ValidateDef (checked when space.SetFields replaces
// a schema; export's Import does not call it) and Parse (raw request string
// to stored TypedValue).
package field

import (
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// ParseContext carries the request-scoped state a parser needs beyond the
// field definition itself (spec.md §4.1): the calling user for $me/$exif
// defaults, the raw values of every field in the current request (so an
// IMAGE-referencing DATETIME default can see its sibling), and the pending
// attachments that raw map references, preloaded by the caller (C5/C6)
// before parsing begins.
type ParseContext struct {
	CurrentUser        string
	Raw                map[string]string
	PendingAttachments map[int64]*domain.PendingAttachment
	Now                func() time.Time
}

func (c ParseContext) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Validator is the per-type contract spec.md §4.1 describes.
type Validator interface {
	ValidateDef(def *domain.FieldDef, space *domain.Space) error
	Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error)
}

// Registry dispatches to the validator for a FieldDef's Type, mirroring how
// linear-fuse's internal/api wraps one concern (GraphQL transport) behind a
// single entry point for its callers.
type Registry struct {
	validators map[domain.FieldType]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: map[domain.FieldType]Validator{
		domain.FieldString:   stringValidator{},
		domain.FieldBoolean:  booleanValidator{},
		domain.FieldNumeric:  numericValidator{},
		domain.FieldSelect:   selectValidator{},
		domain.FieldTags:     tagsValidator{},
		domain.FieldUser:     userValidator{},
		domain.FieldDatetime: datetimeValidator{},
		domain.FieldImage:    imageValidator{},
	}}
}

func (r *Registry) validator(t domain.FieldType) (Validator, error) {
	v, ok := r.validators[t]
	if !ok {
		return nil, apperr.Validationf("unknown field type %q", t)
	}
	return v, nil
}

// ValidateDef validates one FieldDef's options/default shape against its
// declared Type.
func (r *Registry) ValidateDef(def *domain.FieldDef, space *domain.Space) error {
	v, err := r.validator(def.Type)
	if err != nil {
		return err
	}
	return v.ValidateDef(def, space)
}

// Parse turns a raw request string into a stored TypedValue, applying the
// optional-omitted/empty-string and default-resolution rules of spec.md
// §4.1 uniformly before delegating to the type-specific parser.
func (r *Registry) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	v, err := r.validator(def.Type)
	if err != nil {
		return domain.TypedValue{}, err
	}
	if raw == nil || *raw == "" {
		if def.Required {
			return domain.TypedValue{}, apperr.Validationf("field %q is required", def.Name)
		}
		if def.Default != nil {
			return resolveDefault(def, space, *def.Default, ctx)
		}
		return domain.NullValue(def.Type), nil
	}
	return v.Parse(def, space, raw, ctx)
}

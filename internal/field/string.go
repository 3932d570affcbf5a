package field

import (
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type stringValidator struct{}

func (stringValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error {
	opts := def.Options.String
	if opts == nil {
		return apperr.Validationf("field %q: string options required", def.Name)
	}
	switch opts.Kind {
	case domain.StringLine, domain.StringText, domain.StringMarkdown, domain.StringJSON, domain.StringTOML, domain.StringYAML:
	default:
		return apperr.Validationf("field %q: invalid string kind %q", def.Name, opts.Kind)
	}
	if opts.MinLength != nil && opts.MaxLength != nil && *opts.MinLength > *opts.MaxLength {
		return apperr.Validationf("field %q: min_length > max_length", def.Name)
	}
	return nil
}

func (stringValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	s := *raw
	opts := def.Options.String
	if opts.Kind == domain.StringLine && strings.ContainsAny(s, "\n\r") {
		return domain.TypedValue{}, apperr.Validationf("field %q: newline not allowed", def.Name)
	}
	if opts.MinLength != nil && len(s) < *opts.MinLength {
		return domain.TypedValue{}, apperr.Validationf("field %q: shorter than min_length %d", def.Name, *opts.MinLength)
	}
	if opts.MaxLength != nil && len(s) > *opts.MaxLength {
		return domain.TypedValue{}, apperr.Validationf("field %q: longer than max_length %d", def.Name, *opts.MaxLength)
	}
	return domain.StringValue(s), nil
}

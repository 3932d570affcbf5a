package field

import (
	"slices"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type selectValidator struct{}

func (selectValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error {
	opts := def.Options.Select
	if opts == nil || len(opts.Values) == 0 {
		return apperr.Validationf("field %q: select options require a non-empty values list", def.Name)
	}
	for mapName, labels := range opts.ValueMaps {
		if len(labels) != len(opts.Values) {
			return apperr.Validationf("field %q: value_map %q does not cover values exactly", def.Name, mapName)
		}
		for _, v := range opts.Values {
			if _, ok := labels[v]; !ok {
				return apperr.Validationf("field %q: value_map %q missing label for %q", def.Name, mapName, v)
			}
		}
	}
	return nil
}

func (selectValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	opts := def.Options.Select
	if !slices.Contains(opts.Values, *raw) {
		return domain.TypedValue{}, apperr.Validationf("field %q: %q is not one of %v", def.Name, *raw, opts.Values)
	}
	return domain.SelectValue(*raw), nil
}

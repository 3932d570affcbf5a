package field

import (
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type booleanValidator struct{}

func (booleanValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error { return nil }

func (booleanValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	switch strings.ToLower(*raw) {
	case "true", "1", "yes", "on":
		return domain.BoolValue(true), nil
	case "false", "0", "no", "off":
		return domain.BoolValue(false), nil
	default:
		return domain.TypedValue{}, apperr.Validationf("field %q: %q is not a valid boolean", def.Name, *raw)
	}
}

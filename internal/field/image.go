package field

import (
	"strconv"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type imageValidator struct{}

func (imageValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error {
	if opts := def.Options.Image; opts != nil && opts.MaxWidth != nil && *opts.MaxWidth <= 0 {
		return apperr.Validationf("field %q: max_width must be > 0", def.Name)
	}
	return nil
}

// Parse stores the raw pending-attachment number at create time; C5 (Note)
// is responsible for promoting it to a bound attachment number after
// parsing (spec.md §4.3/§4.5).
func (imageValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	n, err := strconv.ParseInt(*raw, 10, 64)
	if err != nil {
		return domain.TypedValue{}, apperr.Validationf("field %q: %q is not a pending attachment number", def.Name, *raw)
	}
	return domain.ImageValue(n), nil
}

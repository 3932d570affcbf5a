package field

import (
	"strconv"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type numericValidator struct{}

func (numericValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error {
	opts := def.Options.Numeric
	if opts == nil {
		return apperr.Validationf("field %q: numeric options required", def.Name)
	}
	switch opts.Kind {
	case domain.NumericInt, domain.NumericFloat, domain.NumericDecimal:
	default:
		return apperr.Validationf("field %q: invalid numeric kind %q", def.Name, opts.Kind)
	}
	if opts.Min != nil && opts.Max != nil && *opts.Min > *opts.Max {
		return apperr.Validationf("field %q: min > max", def.Name)
	}
	return nil
}

func (numericValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	opts := def.Options.Numeric
	var value domain.TypedValue
	var asFloat float64

	switch opts.Kind {
	case domain.NumericInt:
		i, err := strconv.ParseInt(*raw, 10, 64)
		if err != nil {
			return domain.TypedValue{}, apperr.Validationf("field %q: %q is not an int", def.Name, *raw)
		}
		value = domain.IntValue(i)
		asFloat = float64(i)
	case domain.NumericFloat:
		f, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			return domain.TypedValue{}, apperr.Validationf("field %q: %q is not a float", def.Name, *raw)
		}
		value = domain.FloatValue(f)
		asFloat = f
	case domain.NumericDecimal:
		f, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			return domain.TypedValue{}, apperr.Validationf("field %q: %q is not a decimal", def.Name, *raw)
		}
		value = domain.DecimalValue(f)
		asFloat = f
	}

	if opts.Min != nil && asFloat < *opts.Min {
		return domain.TypedValue{}, apperr.Validationf("field %q: %v below min %v", def.Name, asFloat, *opts.Min)
	}
	if opts.Max != nil && asFloat > *opts.Max {
		return domain.TypedValue{}, apperr.Validationf("field %q: %v above max %v", def.Name, asFloat, *opts.Max)
	}
	return value, nil
}

package filter

import (
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/field"
)

// ResolveCondition validates a RawCondition against space's current schema
// and turns it into a domain.Condition: operator-allowed check, null-only-
// with-eq/ne, and per-type value coercion (numeric strings, case-insensitive
// bool/null keywords) via internal/field's per-type parsers. $me on a user
// field is preserved as a literal TypedValue (spec.md §4.2) and only
// resolved against caller at Compile time.
func ResolveCondition(raw RawCondition, space *domain.Space, reg *field.Registry) (domain.Condition, error) {
	ref, err := ParseFieldRef(raw.FieldPath)
	if err != nil {
		return domain.Condition{}, err
	}
	allowed, err := operatorsFor(ref, space)
	if err != nil {
		return domain.Condition{}, err
	}
	if len(allowed) == 0 {
		return domain.Condition{}, apperr.Validationf("field %q does not support filtering", raw.FieldPath)
	}
	if !opAllowed(raw.Op, allowed) {
		return domain.Condition{}, apperr.Validationf("operator %q not allowed on %q", raw.Op, raw.FieldPath)
	}

	fd, err := resolveFieldDef(ref, space)
	if err != nil {
		return domain.Condition{}, err
	}

	if len(raw.Values) == 1 && strings.EqualFold(raw.Values[0], "null") {
		if raw.Op != domain.OpEq && raw.Op != domain.OpNe {
			return domain.Condition{}, apperr.Validationf("null is only valid with eq/ne")
		}
		return domain.Condition{Field: ref, Op: raw.Op, IsNull: true}, nil
	}

	switch raw.Op {
	case domain.OpIn, domain.OpNin, domain.OpAll:
		vals := make([]domain.TypedValue, 0, len(raw.Values))
		for _, v := range raw.Values {
			tv, err := parseFilterValue(fd, space, v, reg)
			if err != nil {
				return domain.Condition{}, err
			}
			vals = append(vals, tv)
		}
		return domain.Condition{Field: ref, Op: raw.Op, ArrayVals: vals}, nil
	default:
		tv, err := parseFilterValue(fd, space, raw.Values[0], reg)
		if err != nil {
			return domain.Condition{}, err
		}
		return domain.Condition{Field: ref, Op: raw.Op, Value: &tv}, nil
	}
}

// parseFilterValue validates a condition operand against fd's type. $me on a
// user field is preserved literally rather than resolved, since a saved or
// adhoc filter value is resolved against the caller at query time, not at
// validation time (spec.md §4.2).
func parseFilterValue(fd domain.FieldDef, space *domain.Space, raw string, reg *field.Registry) (domain.TypedValue, error) {
	if fd.Type == domain.FieldUser && raw == "$me" {
		return domain.UserValue("$me"), nil
	}
	return reg.Parse(fd, space, &raw, field.ParseContext{})
}

// ValidateFilterDef checks that every field referenced by a FilterDef's
// conditions, sort, and default_columns resolves in space's current schema,
// and that every operator is in the referenced type's allowed set (spec.md
// §7 "every FilterDef" invariant). The reserved "all" filter must keep
// empty conditions.
func ValidateFilterDef(def *domain.FilterDef, space *domain.Space) error {
	if def.Name == domain.AllFilterName && len(def.Conditions) > 0 {
		return apperr.Validationf("filter %q must keep empty conditions", domain.AllFilterName)
	}
	for _, c := range def.Conditions {
		allowed, err := operatorsFor(c.Field, space)
		if err != nil {
			return err
		}
		if !opAllowed(c.Op, allowed) {
			return apperr.Validationf("operator %q not allowed on %q", c.Op, c.Field.String())
		}
	}
	for _, s := range def.Sort {
		if _, err := resolveFieldDef(s.Field, space); err != nil {
			return err
		}
	}
	for _, col := range def.DefaultColumns {
		if _, err := resolveFieldDef(col, space); err != nil {
			return err
		}
	}
	return nil
}

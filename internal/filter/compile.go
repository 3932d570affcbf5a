package filter

import (
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
)

// Compile translates a saved FilterDef plus a resolved adhoc overlay into a
// docstore.Query scoped to one space's notes (spec.md §4.2 "Compilation").
// The saved filter's conditions and the adhoc overlay are combined with AND;
// multi-condition conjunction on the same field is preserved (each Condition
// becomes its own Predicate, never merged).
func Compile(space *domain.Space, saved *domain.FilterDef, adhoc []domain.Condition, caller string, skip, limit int) docstore.Query {
	preds := []docstore.Predicate{docstore.Eq{Field: "space_slug", Value: space.Slug}}
	for _, c := range saved.Conditions {
		preds = append(preds, conditionPredicate(c, space, caller))
	}
	for _, c := range adhoc {
		preds = append(preds, conditionPredicate(c, space, caller))
	}

	sort := saved.Sort
	if len(sort) == 0 {
		sort = domain.DefaultSort()
	}
	sortFields := make([]docstore.SortField, 0, len(sort))
	for _, s := range sort {
		fd, err := resolveFieldDef(s.Field, space)
		path := storedFieldPath(s.Field)
		if err == nil {
			path = valueSubPath(s.Field, fd)
		}
		sortFields = append(sortFields, docstore.SortField{Field: path, Desc: s.Desc})
	}

	return docstore.Query{
		Filter: docstore.And{Preds: preds},
		Sort:   sortFields,
		Skip:   skip,
		Limit:  limit,
	}
}

func resolveCaller(v domain.TypedValue, caller string) any {
	if v.Type == domain.FieldUser && v.Str == "$me" {
		return caller
	}
	return scalarOf(v)
}

// scalarOf extracts the comparable Go scalar a TypedValue's stored form
// represents, matching how docstore.Eval's compareAny treats decoded JSON
// documents (numbers as float64-comparable, everything else as string/bool).
func scalarOf(v domain.TypedValue) any {
	switch v.Type {
	case domain.FieldBoolean:
		return v.Bool
	case domain.FieldNumeric:
		if v.Str == string(domain.NumericInt) {
			return v.Int
		}
		return v.Float
	case domain.FieldDatetime:
		return v.Str // canonical RFC3339, lexicographically ordered
	case domain.FieldTags:
		out := make([]any, len(v.Tags))
		for i, t := range v.Tags {
			out[i] = t
		}
		return out
	default:
		return v.Str
	}
}

func conditionPredicate(c domain.Condition, space *domain.Space, caller string) docstore.Predicate {
	fd, err := resolveFieldDef(c.Field, space)
	if err != nil {
		return docstore.And{} // validated earlier; unreachable in practice
	}

	if c.IsNull {
		path := nullFlagPath(c.Field)
		if c.Op == domain.OpNe {
			return docstore.Ne{Field: path, Value: true}
		}
		return docstore.Eq{Field: path, Value: true}
	}

	path := valueSubPath(c.Field, fd)

	switch c.Op {
	case domain.OpEq:
		return docstore.Eq{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpNe:
		return docstore.Ne{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpGt:
		return docstore.Gt{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpGte:
		return docstore.Gte{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpLt:
		return docstore.Lt{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpLte:
		return docstore.Lte{Field: path, Value: resolveCaller(*c.Value, caller)}
	case domain.OpContains:
		return docstore.TextContains{Field: path, Needle: c.Value.Str}
	case domain.OpStartswith:
		return docstore.TextStartsWith{Field: path, Needle: c.Value.Str}
	case domain.OpEndswith:
		return docstore.TextEndsWith{Field: path, Needle: c.Value.Str}
	case domain.OpIn:
		return docstore.In{Field: path, Values: scalarsOf(c.ArrayVals, caller)}
	case domain.OpNin:
		return docstore.Nin{Field: path, Values: scalarsOf(c.ArrayVals, caller)}
	case domain.OpAll:
		return docstore.ContainsAll{Field: path, Values: scalarsOf(c.ArrayVals, caller)}
	default:
		return docstore.And{}
	}
}

func scalarsOf(vals []domain.TypedValue, caller string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = resolveCaller(v, caller)
	}
	return out
}

package docstore

import "strings"

// fieldValue resolves a dot-path field into a generic JSON document decoded
// as map[string]any, e.g. "fields.priority" or "meta.image.width".
func fieldValue(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

// Eval evaluates a compiled Predicate against a decoded document. It is the
// in-memory counterpart to whatever SQL a real backing store would compile
// the same Predicate into; both SQLiteStore and Mock share it so query
// semantics never drift between the two.
func Eval(pred Predicate, doc map[string]any) bool {
	switch p := pred.(type) {
	case And:
		for _, sub := range p.Preds {
			if !Eval(sub, doc) {
				return false
			}
		}
		return true
	case Eq:
		return compareAny(fieldValue(doc, p.Field), p.Value) == 0
	case Ne:
		return compareAny(fieldValue(doc, p.Field), p.Value) != 0
	case Gt:
		return compareAny(fieldValue(doc, p.Field), p.Value) > 0
	case Gte:
		return compareAny(fieldValue(doc, p.Field), p.Value) >= 0
	case Lt:
		return compareAny(fieldValue(doc, p.Field), p.Value) < 0
	case Lte:
		return compareAny(fieldValue(doc, p.Field), p.Value) <= 0
	case In:
		v := fieldValue(doc, p.Field)
		for _, cand := range p.Values {
			if compareAny(v, cand) == 0 {
				return true
			}
		}
		return false
	case Nin:
		v := fieldValue(doc, p.Field)
		for _, cand := range p.Values {
			if compareAny(v, cand) == 0 {
				return false
			}
		}
		return true
	case ContainsAll:
		arr, ok := fieldValue(doc, p.Field).([]any)
		if !ok {
			return false
		}
		for _, want := range p.Values {
			found := false
			for _, have := range arr {
				if compareAny(have, want) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case TextContains:
		s, _ := fieldValue(doc, p.Field).(string)
		return strings.Contains(strings.ToLower(s), strings.ToLower(p.Needle))
	case TextStartsWith:
		s, _ := fieldValue(doc, p.Field).(string)
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(p.Needle))
	case TextEndsWith:
		s, _ := fieldValue(doc, p.Field).(string)
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(p.Needle))
	case IsNull:
		return fieldValue(doc, p.Field) == nil
	case NotNull:
		return fieldValue(doc, p.Field) != nil
	default:
		return false
	}
}

// compareAny orders two decoded JSON scalars. Numbers compare numerically
// regardless of concrete Go type (json.Unmarshal into any always yields
// float64, but values built in Go code may carry int/int64/time.Time), -1/0/1
// like strings.Compare. Incomparable types compare as not-equal in an
// arbitrary but stable direction.
func compareAny(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return strings.Compare(as, bs)
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		if ab == bb {
			return 0
		}
		if !ab && bb {
			return -1
		}
		return 1
	}
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	return 1
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

package docstore

import "strings"

// applyPlan mutates a decoded document in place according to plan, shared by
// SQLiteStore and Mock so both backends apply the same compound-update
// semantics spec.md §5 requires ($set/$unset/$push/$pull/$rename/$[elem]).
func applyPlan(doc map[string]any, plan *UpdatePlan) {
	for _, op := range plan.Ops {
		switch op.Kind {
		case OpSet:
			setPath(doc, op.Field, op.Value)
		case OpUnset:
			unsetPath(doc, op.Field)
		case OpPush:
			arr, _ := fieldValue(doc, op.Field).([]any)
			arr = append(arr, op.Value)
			setPath(doc, op.Field, arr)
		case OpPull:
			arr, _ := fieldValue(doc, op.Field).([]any)
			var out []any
			for _, el := range arr {
				if op.ArrayMatchField != "" {
					if m, ok := el.(map[string]any); ok && compareAny(m[op.ArrayMatchField], op.Value) == 0 {
						continue
					}
					out = append(out, el)
					continue
				}
				if compareAny(el, op.Value) == 0 {
					continue
				}
				out = append(out, el)
			}
			setPath(doc, op.Field, out)
		case OpIncr:
			cur, _ := toInt64(fieldValue(doc, op.Field))
			by, _ := toInt64(op.Value)
			setPath(doc, op.Field, cur+by)
		case OpRename:
			v := fieldValue(doc, op.Field)
			unsetPath(doc, op.Field)
			setPath(doc, op.RenameTo, v)
		case OpArrayFilterSet:
			arr, _ := fieldValue(doc, op.Field).([]any)
			for _, el := range arr {
				if m, ok := el.(map[string]any); ok && compareAny(m[op.ArrayMatchField], op.ArrayMatchValue) == 0 {
					m[op.ArraySubField] = op.Value
				}
			}
			setPath(doc, op.Field, arr)
		}
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func setPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

func unsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

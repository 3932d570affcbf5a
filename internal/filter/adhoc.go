package filter

import (
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// RawCondition is one unresolved condition out of the adhoc query grammar
// (spec.md §4.2), before its field type is known.
type RawCondition struct {
	FieldPath string
	Op        domain.Op
	// Values holds one item for scalar operators, N items for in/nin/all.
	Values []string
}

const (
	escapedComma = "%2C"
	escapedPipe  = "%7C"
)

func unescape(s string) string {
	s = strings.ReplaceAll(s, escapedComma, ",")
	s = strings.ReplaceAll(s, escapedPipe, "|")
	return s
}

// splitUnescaped splits s on every unescaped occurrence of sep, leaving
// escaped occurrences (the literal %2C/%7C sequences) alone to be unescaped
// by the caller afterward.
func splitUnescaped(s, sep string) []string {
	return strings.Split(s, sep)
}

// ParseAdhocQuery parses the free-form overlay grammar:
//
//	query      = condition ("," condition)*
//	condition  = field_path ":" op ":" value
//
// "," separates conditions, "|" separates items inside in/nin/all values;
// %2C/%7C escape those delimiters inside a literal value.
func ParseAdhocQuery(query string) ([]RawCondition, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	var out []RawCondition
	for _, part := range splitUnescaped(query, ",") {
		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func parseCondition(s string) (RawCondition, error) {
	fields := strings.SplitN(s, ":", 3)
	if len(fields) != 3 {
		return RawCondition{}, apperr.Validationf("malformed condition %q", s)
	}
	fieldPath, rawOp, rawValue := fields[0], fields[1], fields[2]
	op := domain.Op(rawOp)

	switch op {
	case domain.OpIn, domain.OpNin, domain.OpAll:
		items := splitUnescaped(rawValue, "|")
		for i, it := range items {
			items[i] = unescape(it)
		}
		return RawCondition{FieldPath: fieldPath, Op: op, Values: items}, nil
	default:
		return RawCondition{FieldPath: fieldPath, Op: op, Values: []string{unescape(rawValue)}}, nil
	}
}

// ParseSortRefs parses a list of field refs where a leading "-" denotes
// descending order.
func ParseSortRefs(refs []string) ([]domain.SortSpec, error) {
	var out []domain.SortSpec
	for _, r := range refs {
		desc := false
		if strings.HasPrefix(r, "-") {
			desc = true
			r = r[1:]
		}
		ref, err := ParseFieldRef(r)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SortSpec{Field: ref, Desc: desc})
	}
	return out, nil
}

package field

import (
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// datetimeLayouts are tried in order, first match wins (spec.md §4.1).
var datetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05.999999",
	time.RFC3339,
}

type datetimeValidator struct{}

func (datetimeValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error { return nil }

func (datetimeValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	s := *raw
	if s == "$now" {
		return domain.DatetimeValue(ctx.now().UnixNano(), formatDatetime(ctx.now())), nil
	}
	return parseDatetime(def.Name, s)
}

// parseDatetime tries every accepted layout (spec.md §4.1), interpreting a
// naive (no offset) result as UTC.
func parseDatetime(fieldName, raw string) (domain.TypedValue, error) {
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		t = t.UTC()
		return domain.DatetimeValue(t.UnixNano(), t.Format(time.RFC3339)), nil
	}
	return domain.TypedValue{}, apperr.Validationf("field %q: %q does not match any accepted datetime format", fieldName, raw)
}

func formatDatetime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

package field

import (
	"strings"

	"github.com/spacenote/spacenote/internal/domain"
)

type tagsValidator struct{}

func (tagsValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error { return nil }

func (tagsValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(*raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return domain.TagsValue(out), nil
}

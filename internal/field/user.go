package field

import (
	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type userValidator struct{}

func (userValidator) ValidateDef(def *domain.FieldDef, space *domain.Space) error { return nil }

func (userValidator) Parse(def domain.FieldDef, space *domain.Space, raw *string, ctx ParseContext) (domain.TypedValue, error) {
	username := *raw
	if username == "$me" {
		if ctx.CurrentUser == "" {
			return domain.TypedValue{}, apperr.Validationf("field %q: $me requires a calling user", def.Name)
		}
		username = ctx.CurrentUser
	}
	if space != nil && !space.IsMember(username) {
		return domain.TypedValue{}, apperr.Validationf("field %q: %q is not a member of the space", def.Name, username)
	}
	return domain.UserValue(username), nil
}

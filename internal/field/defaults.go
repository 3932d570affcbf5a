package field

import (
	"strconv"
	"strings"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// resolveDefault expands a FieldDef's raw default expression into a stored
// TypedValue (spec.md §4.1 "Special defaults"). $me and $now are substituted
// before the type-specific parser runs; $exif.created_at is resolved
// directly to a TypedValue here since it never goes through the normal
// textual parser (it reads a pending attachment's extracted metadata, not
// request text).
func resolveDefault(def domain.FieldDef, space *domain.Space, raw string, ctx ParseContext) (domain.TypedValue, error) {
	v := validatorFor(def.Type)

	if def.Type == domain.FieldUser && raw == "$me" {
		if ctx.CurrentUser == "" {
			return domain.TypedValue{}, apperr.Validationf("field %q default $me requires a calling user", def.Name)
		}
		return v.Parse(def, space, &ctx.CurrentUser, ctx)
	}

	if def.Type == domain.FieldDatetime {
		if raw == "$now" {
			now := formatDatetime(ctx.now())
			return v.Parse(def, space, &now, ctx)
		}
		if strings.HasPrefix(raw, "$exif.created_at:") {
			return resolveExifDefault(def, space, raw, ctx)
		}
	}

	return v.Parse(def, space, &raw, ctx)
}

func validatorFor(t domain.FieldType) Validator {
	switch t {
	case domain.FieldString:
		return stringValidator{}
	case domain.FieldBoolean:
		return booleanValidator{}
	case domain.FieldNumeric:
		return numericValidator{}
	case domain.FieldSelect:
		return selectValidator{}
	case domain.FieldTags:
		return tagsValidator{}
	case domain.FieldUser:
		return userValidator{}
	case domain.FieldDatetime:
		return datetimeValidator{}
	case domain.FieldImage:
		return imageValidator{}
	default:
		return nil
	}
}

// resolveExifDefault implements "$exif.created_at:<image_field>[|<fallback>]"
// (spec.md §4.1): look up the pending attachment referenced by the named
// image field in the current request, read its extracted EXIF creation
// time, and fall back to a literal datetime or $now on miss.
func resolveExifDefault(def domain.FieldDef, space *domain.Space, raw string, ctx ParseContext) (domain.TypedValue, error) {
	body := strings.TrimPrefix(raw, "$exif.created_at:")
	imageField, fallback, hasFallback := strings.Cut(body, "|")

	if imageFieldValue, ok := ctx.Raw[imageField]; ok && imageFieldValue != "" {
		num, err := strconv.ParseInt(imageFieldValue, 10, 64)
		if err == nil {
			if pending, ok := ctx.PendingAttachments[num]; ok && pending.Meta.Image != nil && pending.Meta.Image.ExifCreatedAt != nil {
				return parseDatetime(def.Name, formatDatetime(*pending.Meta.Image.ExifCreatedAt))
			}
		}
	}

	if !hasFallback {
		return domain.NullValue(domain.FieldDatetime), nil
	}
	if fallback == "$now" {
		return parseDatetime(def.Name, formatDatetime(ctx.now()))
	}
	return parseDatetime(def.Name, fallback)
}

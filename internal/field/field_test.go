package field

import (
	"testing"
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/stretchr/testify/require"
)

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestParseStringLineRejectsNewline(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "title", Type: domain.FieldString, Options: domain.FieldOptions{String: &domain.StringOptions{Kind: domain.StringLine}}}
	raw := "hello\nworld"
	_, err := r.Parse(def, nil, &raw, ParseContext{})
	require.Error(t, err)
	require.Equal(t, apperr.ValidationFailure, apperr.KindOf(err))
}

func TestParseRequiredOmittedFails(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "title", Type: domain.FieldString, Required: true, Options: domain.FieldOptions{String: &domain.StringOptions{Kind: domain.StringLine}}}
	_, err := r.Parse(def, nil, nil, ParseContext{})
	require.Error(t, err)
}

func TestParseOptionalOmittedUsesDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def1 := "open"
	def := domain.FieldDef{
		Name:    "status",
		Type:    domain.FieldSelect,
		Options: domain.FieldOptions{Select: &domain.SelectOptions{Values: []string{"open", "closed"}}},
		Default: &def1,
	}
	val, err := r.Parse(def, nil, nil, ParseContext{})
	require.NoError(t, err)
	require.Equal(t, "open", val.Str)
}

func TestParseOptionalOmittedNoDefaultIsNull(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "notes", Type: domain.FieldString, Options: domain.FieldOptions{String: &domain.StringOptions{Kind: domain.StringText}}}
	val, err := r.Parse(def, nil, nil, ParseContext{})
	require.NoError(t, err)
	require.True(t, val.IsNull)
}

func TestParseNumericRange(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	min, max := 1.0, 5.0
	def := domain.FieldDef{Name: "priority", Type: domain.FieldNumeric, Options: domain.FieldOptions{Numeric: &domain.NumericOptions{Kind: domain.NumericInt, Min: &min, Max: &max}}}

	raw := "3"
	val, err := r.Parse(def, nil, &raw, ParseContext{})
	require.NoError(t, err)
	require.Equal(t, int64(3), val.Int)

	raw = "10"
	_, err = r.Parse(def, nil, &raw, ParseContext{})
	require.Error(t, err)
}

func TestParseSelectMembership(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "status", Type: domain.FieldSelect, Options: domain.FieldOptions{Select: &domain.SelectOptions{Values: []string{"open", "closed"}}}}

	raw := "open"
	val, err := r.Parse(def, nil, &raw, ParseContext{})
	require.NoError(t, err)
	require.Equal(t, "open", val.Str)

	raw = "archived"
	_, err = r.Parse(def, nil, &raw, ParseContext{})
	require.Error(t, err)
}

func TestParseTagsSplitTrimDedup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "tags", Type: domain.FieldTags}
	raw := "a, b ,a, , c"
	val, err := r.Parse(def, nil, &raw, ParseContext{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, val.Tags)
}

func TestParseUserMeResolvesToCaller(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	space := &domain.Space{Slug: "demo", Members: []string{"alice"}}
	def := domain.FieldDef{Name: "assignee", Type: domain.FieldUser}

	raw := "$me"
	val, err := r.Parse(def, space, &raw, ParseContext{CurrentUser: "alice"})
	require.NoError(t, err)
	require.Equal(t, "alice", val.Str)
}

func TestParseUserMustBeMember(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	space := &domain.Space{Slug: "demo", Members: []string{"alice"}}
	def := domain.FieldDef{Name: "assignee", Type: domain.FieldUser}

	raw := "mallory"
	_, err := r.Parse(def, space, &raw, ParseContext{})
	require.Error(t, err)
}

func TestParseDatetimeFormats(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "due", Type: domain.FieldDatetime}

	for _, raw := range []string{
		"2024-06-01T10:00:00",
		"2024-06-01T10:00",
		"2024-06-01 10:00:00",
		"2024-06-01",
		"2024-06-01T10:00:00Z",
	} {
		val, err := r.Parse(def, nil, &raw, ParseContext{})
		require.NoError(t, err, raw)
		require.Equal(t, domain.FieldDatetime, val.Type)
	}
}

func TestParseDatetimeNowDefault(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	nowLit := "$now"
	def := domain.FieldDef{Name: "created", Type: domain.FieldDatetime, Default: &nowLit}

	val, err := r.Parse(def, nil, nil, ParseContext{Now: fixedNow(now)})
	require.NoError(t, err)
	require.Equal(t, now.Format(time.RFC3339), val.Str)
}

func TestParseExifDefaultHitAndFallback(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	exifTime := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	defExpr := "$exif.created_at:photo|$now"
	def := domain.FieldDef{Name: "taken_at", Type: domain.FieldDatetime, Default: &defExpr}

	ctx := ParseContext{
		Raw: map[string]string{"photo": "7"},
		PendingAttachments: map[int64]*domain.PendingAttachment{
			7: {Number: 7, Meta: domain.AttachmentMeta{Image: &domain.ImageMeta{ExifCreatedAt: &exifTime}}},
		},
		Now: fixedNow(now),
	}
	val, err := r.Parse(def, nil, nil, ctx)
	require.NoError(t, err)
	require.Equal(t, exifTime.Format(time.RFC3339), val.Str)

	// miss falls back to $now
	ctx2 := ParseContext{Raw: map[string]string{"photo": "9"}, Now: fixedNow(now)}
	val2, err := r.Parse(def, nil, nil, ctx2)
	require.NoError(t, err)
	require.Equal(t, now.Format(time.RFC3339), val2.Str)
}

func TestParseImageStoresAttachmentNumber(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{Name: "photo", Type: domain.FieldImage}
	raw := "42"
	val, err := r.Parse(def, nil, &raw, ParseContext{})
	require.NoError(t, err)
	require.Equal(t, int64(42), val.Int)
}

func TestValidateDefSelectValueMapsMustCoverExactly(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	def := domain.FieldDef{
		Name: "status",
		Type: domain.FieldSelect,
		Options: domain.FieldOptions{Select: &domain.SelectOptions{
			Values:    []string{"open", "closed"},
			ValueMaps: map[string]map[string]string{"en": {"open": "Open"}},
		}},
	}
	err := r.ValidateDef(&def, nil)
	require.Error(t, err)
}

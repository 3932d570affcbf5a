// Package domain holds SpaceNote's core data model (spec.md §3): the
// shared value types every component operates on. Types are plain structs
// with stable string/int keys, never in-memory pointers across entities
// (spec.md §9 "Cyclic references"), so components can be composed without
// import cycles.
package domain

// FieldType is the closed set of custom field types a Space schema can
// declare (spec.md §4.1).
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldBoolean  FieldType = "boolean"
	FieldNumeric  FieldType = "numeric"
	FieldSelect   FieldType = "select"
	FieldTags     FieldType = "tags"
	FieldUser     FieldType = "user"
	FieldDatetime FieldType = "datetime"
	FieldImage    FieldType = "image"
)

// StringKind is the string field's "kind" option.
type StringKind string

const (
	StringLine     StringKind = "line"
	StringText     StringKind = "text"
	StringMarkdown StringKind = "markdown"
	StringJSON     StringKind = "json"
	StringTOML     StringKind = "toml"
	StringYAML     StringKind = "yaml"
)

// NumericKind is the numeric field's "kind" option.
type NumericKind string

const (
	NumericInt     NumericKind = "int"
	NumericFloat   NumericKind = "float"
	NumericDecimal NumericKind = "decimal"
)

// FieldOptions is the closed sum of per-type option shapes (spec.md §9:
// "discriminated unions, not string-typed maps"). Exactly one of the
// type-specific fields is populated, matching Type.
type FieldOptions struct {
	String   *StringOptions
	Numeric  *NumericOptions
	Select   *SelectOptions
	Image    *ImageOptions
}

type StringOptions struct {
	Kind      StringKind
	MinLength *int
	MaxLength *int
}

type NumericOptions struct {
	Kind NumericKind
	Min  *float64
	Max  *float64
}

type SelectOptions struct {
	Values    []string
	ValueMaps map[string]map[string]string // label set name -> value -> label
}

type ImageOptions struct {
	MaxWidth *int
}

// FieldDef is one typed column of a Space's schema (spec.md §3/§4.1).
//
// Default is a raw expression in the same textual grammar as a request's raw
// field value, plus the special tokens $me, $now and
// $exif.created_at:<field>[|<fallback>] (spec.md §4.1): it is resolved by
// internal/field at parse time, not pre-parsed into a TypedValue, because
// $me and $exif defaults depend on the calling request.
type FieldDef struct {
	Name     string
	Type     FieldType
	Required bool
	Options  FieldOptions
	Default  *string
}

// TypedValue is a closed sum over the stored representations of every field
// type. Exactly one field is meaningful, selected by Type. JSON tags are
// stable: this is the on-disk shape inside a stored note's fields.<name>,
// addressed sub-field-by-sub-field by internal/filter's compiled predicates
// (e.g. fields.priority.int), so Type is always retained and no field ever
// changes its tag.
type TypedValue struct {
	Type   FieldType `json:"type"`
	Str    string    `json:"str,omitempty"`  // string, select, user; datetime canonical RFC3339; numeric kind tag ("int"/"float"/"decimal")
	Bool   bool      `json:"bool,omitempty"`
	Int    int64     `json:"int,omitempty"`
	Float  float64   `json:"float,omitempty"`
	Tags   []string  `json:"tags,omitempty"`
	IsNull bool      `json:"null,omitempty"`
}

func NullValue(t FieldType) TypedValue { return TypedValue{Type: t, IsNull: true} }

func StringValue(s string) TypedValue { return TypedValue{Type: FieldString, Str: s} }
func BoolValue(b bool) TypedValue     { return TypedValue{Type: FieldBoolean, Bool: b} }
func TagsValue(tags []string) TypedValue {
	if tags == nil {
		tags = []string{}
	}
	return TypedValue{Type: FieldTags, Tags: tags}
}
func UserValue(username string) TypedValue { return TypedValue{Type: FieldUser, Str: username} }
func SelectValue(v string) TypedValue      { return TypedValue{Type: FieldSelect, Str: v} }
func ImageValue(attachmentNumber int64) TypedValue {
	return TypedValue{Type: FieldImage, Int: attachmentNumber}
}

func IntValue(i int64) TypedValue     { return TypedValue{Type: FieldNumeric, Int: i, Str: "int"} }
func FloatValue(f float64) TypedValue { return TypedValue{Type: FieldNumeric, Float: f, Str: "float"} }
func DecimalValue(f float64) TypedValue {
	return TypedValue{Type: FieldNumeric, Float: f, Str: "decimal"}
}

// DatetimeValue stores a UTC instant as a canonical RFC3339 string plus a
// parsed Unix-nanosecond field for comparisons, so filter compilation never
// needs to reparse.
func DatetimeValue(unixNano int64, canonical string) TypedValue {
	return TypedValue{Type: FieldDatetime, Int: unixNano, Str: canonical}
}

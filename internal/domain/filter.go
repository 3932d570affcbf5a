package domain

// Op is a filter condition operator (spec.md §4.2).
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpContains   Op = "contains"
	OpStartswith Op = "startswith"
	OpEndswith   Op = "endswith"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpNin        Op = "nin"
	OpAll        Op = "all"
)

// OperatorsByType is the allowed-operator table from spec.md §4.2.
var OperatorsByType = map[FieldType][]Op{
	FieldString:   {OpEq, OpNe, OpContains, OpStartswith, OpEndswith},
	FieldBoolean:  {OpEq, OpNe},
	FieldNumeric:  {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte},
	FieldDatetime: {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte},
	FieldSelect:   {OpEq, OpNe, OpIn, OpNin},
	FieldTags:     {OpEq, OpNe, OpIn, OpNin, OpAll},
	FieldUser:     {OpEq, OpNe},
	FieldImage:    {},
}

// NoteRef is a built-in (non-custom) field reference usable in conditions
// and sort specs.
type NoteRef string

const (
	RefNumber     NoteRef = "note.number"
	RefAuthor     NoteRef = "note.author"
	RefCreatedAt  NoteRef = "note.created_at"
	RefEditedAt   NoteRef = "note.edited_at"
	RefActivityAt NoteRef = "note.activity_at"
	FieldRefPrefix        = "note.fields."
)

// FieldRef identifies a note-level built-in column or a note.fields.<name>
// custom field, as addressed in a Condition/sort-spec/default-columns entry.
type FieldRef struct {
	Builtin   NoteRef // set iff this is a built-in ref
	FieldName string  // set iff Builtin == ""
}

func (r FieldRef) String() string {
	if r.Builtin != "" {
		return string(r.Builtin)
	}
	return FieldRefPrefix + r.FieldName
}

func (r FieldRef) IsCustomField() bool { return r.Builtin == "" }

// Condition is one AND-ed predicate in a filter (spec.md §3).
type Condition struct {
	Field FieldRef
	Op    Op
	// Value holds the resolved operand. For $me (user fields) this is the
	// literal string "$me", resolved at query time against the caller.
	Value     *TypedValue
	ArrayVals []TypedValue // populated instead of Value for in/nin/all
	IsNull    bool
}

// SortSpec is one entry of a filter's sort list; Desc is true when the ref
// was prefixed with "-".
type SortSpec struct {
	Field FieldRef
	Desc  bool
}

// FilterDef is a saved, named query (spec.md §3/§4.2).
type FilterDef struct {
	Name           string
	DefaultColumns []FieldRef
	Conditions     []Condition
	Sort           []SortSpec
}

// DefaultSort is applied when a filter specifies none (spec.md §4.2).
func DefaultSort() []SortSpec {
	return []SortSpec{{Field: FieldRef{Builtin: RefCreatedAt}, Desc: true}}
}

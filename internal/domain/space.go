package domain

import "time"

// AllFilterName is the reserved, always-present filter (spec.md §3/§4.2).
const AllFilterName = "all"

// AdminUsername is the reserved, elevated-capability username (spec.md §3).
const AdminUsername = "admin"

// Space is a tenant: notes, schema, members, filters, templates, messenger
// config (spec.md §3).
type Space struct {
	Slug                     string
	Title                    string
	Description              string
	Members                  []string
	Fields                   []FieldDef
	Filters                  []FilterDef
	HiddenFieldsOnCreate     []string
	EditableFieldsOnComment  []string
	Templates                map[string]string
	Telegram                 *MessengerSettings
	CreatedAt                time.Time
}

// MessengerSettings configures the optional messenger integration for a
// Space (spec.md §3, §4.7).
type MessengerSettings struct {
	ActivityChannelID string // empty = activity notifications disabled
	MirrorChannelID   string // empty = mirror disabled
}

// FieldByName returns the FieldDef named name, or nil.
func (s *Space) FieldByName(name string) *FieldDef {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// FilterByName returns the FilterDef named name, or nil.
func (s *Space) FilterByName(name string) *FilterDef {
	for i := range s.Filters {
		if s.Filters[i].Name == name {
			return &s.Filters[i]
		}
	}
	return nil
}

// IsMember reports whether username is a member of the space. admin is
// never a member (spec.md §3 invariant) and is checked separately by the
// access guard.
func (s *Space) IsMember(username string) bool {
	for _, m := range s.Members {
		if m == username {
			return true
		}
	}
	return false
}

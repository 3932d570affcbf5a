// Package template is C9, the template engine (spec.md §4.6): note titles
// and messenger payloads are rendered from per-space named template
// strings against a structured context.
package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// Validate reports a syntax error in tmplStr as a validation failure
// (spec.md §4.6 "Syntax errors on set_template are a validation failure").
func Validate(tmplStr string) error {
	if _, err := parse(tmplStr); err != nil {
		return apperr.Validationf("invalid template: %v", err)
	}
	return nil
}

func parse(tmplStr string) (*template.Template, error) {
	return template.New("tmpl").Option("missingkey=zero").Parse(tmplStr)
}

// Render executes tmplStr against data. Execution errors are returned to
// the caller, who per spec.md §4.6 ("rendering errors are non-fatal:
// return empty string and log") is responsible for logging and falling
// back to "".
func Render(tmplStr string, data any) (string, error) {
	t, err := parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// DefaultNoteTitle is the fallback used when a space has no "note:title"
// template, or its rendering fails (spec.md §4.6 "value replaces a default
// of \"Note #<number>\"").
func DefaultNoteTitle(number int64) string {
	return fmt.Sprintf("Note #%d", number)
}

// NoteTitle renders space's "note:title" template for note, falling back
// to DefaultNoteTitle on a missing template or a render error.
func NoteTitle(space *domain.Space, note *domain.Note) string {
	tmplStr, ok := space.Templates["note:title"]
	if !ok || strings.TrimSpace(tmplStr) == "" {
		return DefaultNoteTitle(note.Number)
	}
	out, err := Render(tmplStr, map[string]any{"note": note, "space": space})
	if err != nil || strings.TrimSpace(out) == "" {
		return DefaultNoteTitle(note.Number)
	}
	return out
}

// photoDirective matches a leading "{# photo: <field> #}" directive on a
// telegram:mirror template (spec.md §4.6/§4.7).
var photoDirective = regexp.MustCompile(`^\s*\{#\s*photo:\s*([A-Za-z0-9_]+)\s*#\}\s*\n?`)

// SplitMirrorTemplate reports the IMAGE field named by a leading photo
// directive, if present, and the remaining template body with the
// directive stripped. field is empty when tmplStr has no photo directive.
func SplitMirrorTemplate(tmplStr string) (field string, body string) {
	m := photoDirective.FindStringSubmatchIndex(tmplStr)
	if m == nil {
		return "", tmplStr
	}
	field = tmplStr[m[2]:m[3]]
	body = tmplStr[m[1]:]
	return field, body
}

// telegramSpecialChars are the MarkdownV2 characters Telegram requires
// escaped in message text (original_source/telegram/utils.py).
const telegramSpecialChars = "_*[]()~`>#+-=|{}.!"

// Escape escapes s for use in a Telegram MarkdownV2 message, carried over
// from the original implementation even though spec.md itself doesn't
// mention escaping.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(telegramSpecialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

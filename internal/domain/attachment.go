package domain

import "time"

// ImageMeta captures decoded image dimensions/format and any EXIF-derived
// creation timestamp (spec.md §3 AttachmentMeta).
type ImageMeta struct {
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Format        string     `json:"format"`
	ExifCreatedAt *time.Time `json:"exif_created_at,omitempty"`
}

// AttachmentMeta is the metadata extracted at upload time (spec.md §3).
type AttachmentMeta struct {
	Image *ImageMeta        `json:"image,omitempty"`
	Exif  map[string]string `json:"exif,omitempty"`
	Error string            `json:"error,omitempty"`
}

// PendingAttachment is a short-lived, globally-numbered upload not yet
// bound to a note (spec.md §3/§4.5).
type PendingAttachment struct {
	Number    int64          `json:"number"`
	Author    string         `json:"author"`
	Filename  string         `json:"filename"`
	Size      int64          `json:"size"`
	MimeType  string         `json:"mime_type"`
	Meta      AttachmentMeta `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// Attachment is a promoted, space-scoped (and optionally note-scoped)
// attachment (spec.md §3). NoteNumber == nil means space-level.
type Attachment struct {
	SpaceSlug  string         `json:"space_slug"`
	NoteNumber *int64         `json:"note_number,omitempty"`
	Number     int64          `json:"number"`
	Author     string         `json:"author"`
	Filename   string         `json:"filename"`
	Size       int64          `json:"size"`
	MimeType   string         `json:"mime_type"`
	Meta       AttachmentMeta `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SpaceScope is the sentinel note-number path segment for space-level
// attachments (spec.md §6 blob store paths).
const SpaceScope = "__space__"

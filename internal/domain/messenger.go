package domain

import "time"

// TaskType is the closed set of messenger task kinds (spec.md §4.7).
type TaskType string

const (
	TaskActivityNoteCreated    TaskType = "activity_note_created"
	TaskActivityNoteUpdated    TaskType = "activity_note_updated"
	TaskActivityCommentCreated TaskType = "activity_comment_created"
	TaskMirrorCreate           TaskType = "mirror_create"
	TaskMirrorUpdate           TaskType = "mirror_update"
)

// TaskStatus is a MessengerTask's lifecycle state (spec.md §3).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// MessengerTask is one durable unit of outbound messenger work (spec.md §3).
type MessengerTask struct {
	SpaceSlug   string         `json:"space_slug"`
	Number      int64          `json:"number"`
	TaskType    TaskType       `json:"task_type"`
	ChannelID   string         `json:"channel_id"`
	NoteNumber  int64          `json:"note_number"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	AttemptedAt *time.Time     `json:"attempted_at,omitempty"`
	Retries     int            `json:"retries"`
	Error       string         `json:"error,omitempty"`
}

// MessageFormat is how a mirrored message was sent (spec.md §3).
type MessageFormat string

const (
	FormatText  MessageFormat = "text"
	FormatPhoto MessageFormat = "photo"
)

// MessengerMirror binds a note to its external message for idempotent edits
// (spec.md §3). Unique on (SpaceSlug, NoteNumber).
type MessengerMirror struct {
	SpaceSlug     string        `json:"space_slug"`
	NoteNumber    int64         `json:"note_number"`
	ChannelID     string        `json:"channel_id"`
	MessageID     string        `json:"message_id"`
	MessageFormat MessageFormat `json:"message_format"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
}

const MaxTaskRetries = 3

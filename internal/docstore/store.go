package docstore

import "context"

// Collection names, fixed by spec.md §6.
const (
	CollUsers              = "users"
	CollSessions           = "sessions"
	CollSpaces             = "spaces"
	CollNotes              = "notes"
	CollComments           = "comments"
	CollCounters           = "counters"
	CollPendingAttachments = "pending_attachments"
	CollAttachments        = "attachments"
	CollTelegramTasks      = "telegram_tasks"
	CollTelegramMirrors    = "telegram_mirrors"
)

// Index describes a (possibly compound, possibly unique) index to create on
// a collection, per the required unique compound keys in spec.md §6.
type Index struct {
	Fields []string
	Unique bool
	// TTLField and TTLSeconds describe a TTL index. Neither SQLiteStore nor
	// Mock expires documents from them; session expiry is checked by
	// internal/identity instead.
	TTLField   string
	TTLSeconds int64
}

// Store is the abstract document store spec.md §6 requires: insert,
// find-one/find-many with sort/skip/limit, count, compound-operator
// update-one, delete-one/delete-many, atomic find-one-and-update with
// upsert, and index creation.
//
// dest parameters follow the shape of Go's encoding/json: a pointer to a
// struct for single-document results, a pointer to a slice for Find.
type Store interface {
	EnsureIndex(ctx context.Context, collection string, idx Index) error

	InsertOne(ctx context.Context, collection string, doc any) error

	// FindOne decodes the first document matching q.Filter into dest.
	// Sort on q is honored; Skip and Limit are ignored.
	FindOne(ctx context.Context, collection string, q Query, dest any) (bool, error)

	// Find decodes every document matching q (after sort/skip/limit) into
	// the slice pointed to by dest, and returns the total count of
	// documents matching q.Filter ignoring skip/limit.
	Find(ctx context.Context, collection string, q Query, dest any) (total int, err error)

	Count(ctx context.Context, collection string, filter Predicate) (int, error)

	// UpdateOne applies plan to the first document matching filter.
	UpdateOne(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan) (matched bool, err error)

	DeleteOne(ctx context.Context, collection string, filter Predicate) (bool, error)

	DeleteMany(ctx context.Context, collection string, filter Predicate) (int, error)

	// FindOneAndUpdate atomically applies plan to the document matching
	// filter (inserting upsertDoc first if upsert is true and none
	// matches), then decodes the post-update document into dest. This is
	// the primitive C3 Counters builds on.
	FindOneAndUpdate(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan, upsert bool, upsertDoc any, dest any) error

	Close() error
}

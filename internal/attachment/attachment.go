// Package attachment is C7, the attachment pipeline (spec.md §4.5): upload
// to a globally-numbered pending slot, direct space/note upload, and
// promotion of a pending upload into a bound attachment with a scheduled
// rendition.
package attachment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/blobstore"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
)

// MetadataExtractor decodes an uploaded blob's image metadata (dimensions,
// format, EXIF) when mimeType is a supported image type. Implemented by
// internal/image so this package never imports an image-decoding library
// directly.
type MetadataExtractor interface {
	Extract(mimeType string, data []byte) (*domain.ImageMeta, map[string]string, error)
}

// RenditionScheduler schedules the background WebP rendition C8 produces
// for a newly bound image attachment (spec.md §4.5 "schedules a
// rendition"). maxWidth is nil when the field declares none.
type RenditionScheduler interface {
	ScheduleRendition(ctx context.Context, spaceSlug, noteScope string, number int64, maxWidth *int)
}

// globalPendingKey is the counter scope for pending-attachment numbering.
// Pending uploads are not yet associated with any space (spec.md §4.5
// "assigns a global sequential number"), so this uses the empty string as
// a space-independent sentinel distinct from every real space slug.
var globalPendingKey = domain.CounterKey{SpaceSlug: "", Kind: domain.CounterPendingAttachment}

type Service struct {
	store      docstore.Store
	counters   *counter.Counters
	blobs      *blobstore.Store
	meta       MetadataExtractor
	renditions RenditionScheduler
	now        func() time.Time
}

func New(store docstore.Store, counters *counter.Counters, blobs *blobstore.Store, meta MetadataExtractor, renditions RenditionScheduler) *Service {
	return &Service{store: store, counters: counters, blobs: blobs, meta: meta, renditions: renditions, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetNow(now func() time.Time) { s.now = now }

func isImage(mimeType string) bool { return strings.HasPrefix(mimeType, "image/") }

func (s *Service) extract(mimeType string, data []byte) domain.AttachmentMeta {
	if !isImage(mimeType) || s.meta == nil {
		return domain.AttachmentMeta{}
	}
	img, exif, err := s.meta.Extract(mimeType, data)
	if err != nil {
		return domain.AttachmentMeta{Error: err.Error()}
	}
	return domain.AttachmentMeta{Image: img, Exif: exif}
}

// UploadPending stores data under a new global pending number and records
// its metadata, downloadable only by author until bound; pending uploads
// do not expire (spec.md §4.5 "Upload to pending").
func (s *Service) UploadPending(ctx context.Context, author, filename, mimeType string, data []byte) (*domain.PendingAttachment, error) {
	number, err := s.counters.Next(ctx, globalPendingKey)
	if err != nil {
		return nil, apperr.Internalf(err, "reserve pending attachment number")
	}
	if err := s.blobs.Write(blobstore.PendingPath(number), data); err != nil {
		return nil, apperr.Internalf(err, "write pending blob")
	}
	p := &domain.PendingAttachment{
		Number:    number,
		Author:    author,
		Filename:  filename,
		Size:      int64(len(data)),
		MimeType:  mimeType,
		Meta:      s.extract(mimeType, data),
		CreatedAt: s.now(),
	}
	if err := s.store.InsertOne(ctx, docstore.CollPendingAttachments, p); err != nil {
		return nil, apperr.Internalf(err, "insert pending attachment")
	}
	return p, nil
}

// GetPending returns a pending attachment by its global number.
func (s *Service) GetPending(ctx context.Context, number int64) (*domain.PendingAttachment, error) {
	var p domain.PendingAttachment
	ok, err := s.store.FindOne(ctx, docstore.CollPendingAttachments, docstore.Query{Filter: docstore.Eq{Field: "number", Value: number}}, &p)
	if err != nil {
		return nil, apperr.Internalf(err, "get pending attachment")
	}
	if !ok {
		return nil, apperr.NotFoundf("pending attachment %d not found", number)
	}
	return &p, nil
}

// UploadDirect stores data bound to a space (and optionally a note)
// immediately, skipping the pending stage (spec.md §4.5 "Direct space/note
// attachment"). noteNumber nil means a space-level attachment.
func (s *Service) UploadDirect(ctx context.Context, space *domain.Space, noteNumber *int64, author, filename, mimeType string, data []byte) (*domain.Attachment, error) {
	key := domain.CounterKey{SpaceSlug: space.Slug, Kind: domain.CounterAttachment}
	if noteNumber != nil {
		key.NoteNumber = *noteNumber
	}
	number, err := s.counters.Next(ctx, key)
	if err != nil {
		return nil, apperr.Internalf(err, "reserve attachment number")
	}

	if err := s.blobs.Write(blobstore.BoundPath(space.Slug, noteScope(noteNumber), number), data); err != nil {
		return nil, apperr.Internalf(err, "write attachment blob")
	}

	a := &domain.Attachment{
		SpaceSlug:  space.Slug,
		NoteNumber: noteNumber,
		Number:     number,
		Author:     author,
		Filename:   filename,
		Size:       int64(len(data)),
		MimeType:   mimeType,
		Meta:       s.extract(mimeType, data),
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertOne(ctx, docstore.CollAttachments, a); err != nil {
		return nil, apperr.Internalf(err, "insert attachment")
	}

	if isImage(mimeType) {
		s.scheduleRendition(ctx, space.Slug, noteScope(noteNumber), number, nil)
	}
	return a, nil
}

func noteScope(noteNumber *int64) string {
	if noteNumber == nil {
		return domain.SpaceScope
	}
	return strconv.FormatInt(*noteNumber, 10)
}

func (s *Service) scheduleRendition(ctx context.Context, spaceSlug, scope string, number int64, maxWidth *int) {
	if s.renditions != nil {
		s.renditions.ScheduleRendition(ctx, spaceSlug, scope, number, maxWidth)
	}
}

// BindToNote implements note.AttachmentBinder: it moves the pending blob
// numbered pendingNumber into the note-scoped bound location, records the
// Attachment, deletes the PendingAttachment row, and schedules a rendition
// respecting def's max_width (spec.md §4.5 "Promotion (finalize)").
func (s *Service) BindToNote(ctx context.Context, space *domain.Space, noteNumber int64, def domain.FieldDef, pendingNumber int64) (int64, error) {
	pending, err := s.GetPending(ctx, pendingNumber)
	if err != nil {
		return 0, err
	}

	key := domain.CounterKey{SpaceSlug: space.Slug, Kind: domain.CounterAttachment, NoteNumber: noteNumber}
	number, err := s.counters.Next(ctx, key)
	if err != nil {
		return 0, apperr.Internalf(err, "reserve attachment number")
	}

	scope := strconv.FormatInt(noteNumber, 10)
	if err := s.blobs.Move(blobstore.PendingPath(pendingNumber), blobstore.BoundPath(space.Slug, scope, number)); err != nil {
		return 0, apperr.Internalf(err, "move pending blob to bound location")
	}

	n := noteNumber
	a := &domain.Attachment{
		SpaceSlug:  space.Slug,
		NoteNumber: &n,
		Number:     number,
		Author:     pending.Author,
		Filename:   pending.Filename,
		Size:       pending.Size,
		MimeType:   pending.MimeType,
		Meta:       pending.Meta,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertOne(ctx, docstore.CollAttachments, a); err != nil {
		return 0, apperr.Internalf(err, "insert bound attachment")
	}
	if _, err := s.store.DeleteOne(ctx, docstore.CollPendingAttachments, docstore.Eq{Field: "number", Value: pendingNumber}); err != nil {
		return 0, apperr.Internalf(err, "delete pending attachment row")
	}

	if isImage(pending.MimeType) {
		var maxWidth *int
		if def.Options.Image != nil {
			maxWidth = def.Options.Image.MaxWidth
		}
		s.scheduleRendition(ctx, space.Slug, scope, number, maxWidth)
	}

	return number, nil
}

// Get returns a bound attachment by natural key.
func (s *Service) Get(ctx context.Context, spaceSlug string, noteNumber *int64, number int64) (*domain.Attachment, error) {
	preds := []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "number", Value: number},
	}
	if noteNumber != nil {
		preds = append(preds, docstore.Eq{Field: "note_number", Value: *noteNumber})
	} else {
		preds = append(preds, docstore.IsNull{Field: "note_number"})
	}
	var a domain.Attachment
	ok, err := s.store.FindOne(ctx, docstore.CollAttachments, docstore.Query{Filter: docstore.And{Preds: preds}}, &a)
	if err != nil {
		return nil, apperr.Internalf(err, "get attachment")
	}
	if !ok {
		return nil, apperr.NotFoundf("attachment %d not found", number)
	}
	return &a, nil
}

// Blob opens the raw bytes of a bound attachment (ownership checked by the
// caller via internal/access before this is reached).
func (s *Service) Blob(a *domain.Attachment) ([]byte, error) {
	scope := domain.SpaceScope
	if a.NoteNumber != nil {
		scope = strconv.FormatInt(*a.NoteNumber, 10)
	}
	data, err := s.blobs.Read(blobstore.BoundPath(a.SpaceSlug, scope, a.Number))
	if err != nil {
		return nil, apperr.Internalf(err, "read attachment blob")
	}
	return data, nil
}

// PendingBlob opens the raw bytes of a pending attachment.
func (s *Service) PendingBlob(p *domain.PendingAttachment) ([]byte, error) {
	data, err := s.blobs.Read(blobstore.PendingPath(p.Number))
	if err != nil {
		return nil, apperr.Internalf(err, "read pending attachment blob")
	}
	return data, nil
}

// DeleteBySpace removes every attachment (DB rows and blobs) belonging to
// spaceSlug, used when the space itself is deleted (spec.md §3 "Lifecycles"
// cascade).
func (s *Service) DeleteBySpace(ctx context.Context, spaceSlug string) error {
	var attachments []domain.Attachment
	if _, err := s.store.Find(ctx, docstore.CollAttachments, docstore.Query{Filter: docstore.Eq{Field: "space_slug", Value: spaceSlug}}, &attachments); err != nil {
		return apperr.Internalf(err, "list attachments for space %s", spaceSlug)
	}
	for _, a := range attachments {
		scope := domain.SpaceScope
		if a.NoteNumber != nil {
			scope = strconv.FormatInt(*a.NoteNumber, 10)
		}
		_ = s.blobs.Delete(blobstore.BoundPath(a.SpaceSlug, scope, a.Number))
		_ = s.blobs.Delete(blobstore.RenditionPath(a.SpaceSlug, scope, a.Number))
	}
	if _, err := s.store.DeleteMany(ctx, docstore.CollAttachments, docstore.Eq{Field: "space_slug", Value: spaceSlug}); err != nil {
		return apperr.Internalf(err, "delete attachments for space %s", spaceSlug)
	}
	return nil
}


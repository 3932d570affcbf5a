// Package messenger is C10 (durable task queue) and C11 (mirror
// state machine) from spec.md §4.7: a single-process worker drains a
// per-space FIFO of outbound Telegram sends, rendering note/comment
// activity and keeping one mirrored message per note in sync.
package messenger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/template"
)

// RateLimitedError signals a provider-level "slow down" response; the
// worker sleeps RetryAfter and leaves the task pending (spec.md §4.7
// "Retry policy").
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return "messenger: rate limited" }

// ErrMessageNotEditable is returned by Provider.EditText/EditPhotoCaption
// when the target message can no longer be edited (deleted, too old, or
// never existed), triggering the mirror_update → mirror_create fallback
// (spec.md §4.7 "mirror_update").
var ErrMessageNotEditable = errors.New("messenger: message not editable")

// Provider is the outbound transport, implemented against the Telegram Bot
// API (see telegram.go). Kept as an interface so the worker and its tests
// never depend on HTTP.
type Provider interface {
	SendText(ctx context.Context, channelID, text string) (messageID string, err error)
	SendPhoto(ctx context.Context, channelID string, photo []byte, caption string) (messageID string, err error)
	EditText(ctx context.Context, channelID, messageID, text string) error
	EditPhotoCaption(ctx context.Context, channelID, messageID, caption string) error
}

// RenditionReader reads a previously scheduled image rendition, implemented
// by internal/image's Pool (spec.md §4.5/§4.7 "the rendition ... is sent as
// a photo").
type RenditionReader interface {
	ReadRendition(spaceSlug, noteScope string, number int64) ([]byte, error)
}

// NoteGetter is the subset of note.Service this package needs to render a
// task's payload.
type NoteGetter interface {
	Get(ctx context.Context, spaceSlug string, number int64) (*domain.Note, error)
}

// CommentGetter is the subset of comment.Service this package needs to
// render an activity_comment_created task.
type CommentGetter interface {
	Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*domain.Comment, error)
}

// SpaceGetter is the subset of space.Service this package needs: resolving
// a task's owning space for its templates and channel configuration.
type SpaceGetter interface {
	Get(ctx context.Context, slug string) (*domain.Space, error)
}

// Service enqueues durable messenger tasks, implementing note.TaskEnqueuer
// and comment.TaskEnqueuer without either of those packages importing this
// one (spec.md §9 "collaborator interfaces over concrete imports").
type Service struct {
	store    docstore.Store
	counters *counter.Counters
	now      func() time.Time
}

func New(store docstore.Store, counters *counter.Counters) *Service {
	return &Service{store: store, counters: counters, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetNow(now func() time.Time) { s.now = now }

func channelFor(taskType domain.TaskType, space *domain.Space) string {
	if space.Telegram == nil {
		return ""
	}
	switch taskType {
	case domain.TaskMirrorCreate, domain.TaskMirrorUpdate:
		return space.Telegram.MirrorChannelID
	default:
		return space.Telegram.ActivityChannelID
	}
}

// Enqueue inserts a new pending MessengerTask, numbered per-space via C3
// (spec.md §4.7 "Task numbering is per-space via C3"). Callers (note,
// comment) are expected to have already checked that the relevant channel
// role is configured; Enqueue still no-ops defensively if it isn't.
func (s *Service) Enqueue(ctx context.Context, space *domain.Space, taskType domain.TaskType, noteNumber int64, payload map[string]any) error {
	channelID := channelFor(taskType, space)
	if channelID == "" {
		return nil
	}
	number, err := s.counters.Next(ctx, domain.CounterKey{SpaceSlug: space.Slug, Kind: domain.CounterMessengerTask})
	if err != nil {
		return apperr.Internalf(err, "reserve messenger task number")
	}
	task := &domain.MessengerTask{
		SpaceSlug:  space.Slug,
		Number:     number,
		TaskType:   taskType,
		ChannelID:  channelID,
		NoteNumber: noteNumber,
		Payload:    payload,
		Status:     domain.TaskPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertOne(ctx, docstore.CollTelegramTasks, task); err != nil {
		return apperr.Internalf(err, "insert messenger task")
	}
	return nil
}

// DeleteBySpace removes every task and mirror row belonging to spaceSlug,
// used when the space itself is deleted (spec.md §3 "Lifecycles" cascade:
// messenger tasks and mirrors are dropped before attachments/comments/
// notes).
func (s *Service) DeleteBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := s.store.DeleteMany(ctx, docstore.CollTelegramTasks, docstore.Eq{Field: "space_slug", Value: spaceSlug}); err != nil {
		return apperr.Internalf(err, "delete messenger tasks for space %s", spaceSlug)
	}
	if _, err := s.store.DeleteMany(ctx, docstore.CollTelegramMirrors, docstore.Eq{Field: "space_slug", Value: spaceSlug}); err != nil {
		return apperr.Internalf(err, "delete messenger mirrors for space %s", spaceSlug)
	}
	return nil
}

// Worker drains the pending task queue in a single background goroutine
// (spec.md §4.7 "A single-process worker runs iff a messenger bot
// credential is configured"), grounded on linear-fuse's sync.Worker
// Start/Stop/Running lifecycle but polling at a variable interval instead
// of a fixed ticker, since the sleep duration itself carries information
// (empty queue vs. just-sent vs. rate-limited).
type Worker struct {
	store      docstore.Store
	provider   Provider
	renditions RenditionReader
	notes      NoteGetter
	comments   CommentGetter
	spaces     SpaceGetter

	emptyQueueDelay time.Duration
	afterSendDelay  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWorker(store docstore.Store, provider Provider, renditions RenditionReader, notes NoteGetter, comments CommentGetter, spaces SpaceGetter) *Worker {
	return &Worker{
		store:           store,
		provider:        provider,
		renditions:      renditions,
		notes:           notes,
		comments:        comments,
		spaces:          spaces,
		emptyQueueDelay: 3 * time.Second,
		afterSendDelay:  1 * time.Second,
	}
}

// Start launches the polling loop in a new goroutine. Calling Start twice
// without an intervening Stop is a no-op.
func (w *Worker) Start(ctx context.Context) {
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish its current
// task, if any.
func (w *Worker) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.stopCh = nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		delay, err := w.tick(ctx)
		if err != nil {
			log.Error().Err(err).Msg("messenger: tick failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// tick claims and processes the oldest pending task, returning how long to
// sleep before the next tick.
func (w *Worker) tick(ctx context.Context) (time.Duration, error) {
	task, err := w.claimNext(ctx)
	if err != nil {
		return w.emptyQueueDelay, err
	}
	if task == nil {
		return w.emptyQueueDelay, nil
	}

	if rl := w.process(ctx, task); rl != nil {
		return rl.RetryAfter, nil
	}
	return w.afterSendDelay, nil
}

func taskKeyFilter(spaceSlug string, number int64) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "number", Value: number},
	}}
}

// claimNext returns the globally oldest pending task (spec.md §4.7 "polls
// ... for the oldest pending task (ordered by created_at)"; "no ordering is
// promised across spaces or across notes").
func (w *Worker) claimNext(ctx context.Context) (*domain.MessengerTask, error) {
	var task domain.MessengerTask
	q := docstore.Query{
		Filter: docstore.Eq{Field: "status", Value: domain.TaskPending},
		Sort:   []docstore.SortField{{Field: "created_at"}},
	}
	found, err := w.store.FindOne(ctx, docstore.CollTelegramTasks, q, &task)
	if err != nil {
		return nil, apperr.Internalf(err, "find pending messenger task")
	}
	if !found {
		return nil, nil
	}
	return &task, nil
}

// process dispatches task by kind and applies the retry policy to its
// outcome (spec.md §4.7 "Retry policy"). It returns a non-nil
// *RateLimitedError when the caller should back off without mutating
// retries.
func (w *Worker) process(ctx context.Context, task *domain.MessengerTask) *RateLimitedError {
	space, err := w.spaces.Get(ctx, task.SpaceSlug)
	if err != nil {
		w.fail(ctx, task, err)
		return nil
	}

	var sendErr error
	switch task.TaskType {
	case domain.TaskActivityNoteCreated, domain.TaskActivityNoteUpdated, domain.TaskActivityCommentCreated:
		sendErr = w.sendActivity(ctx, space, task)
	case domain.TaskMirrorCreate:
		sendErr = w.mirrorCreate(ctx, space, task)
	case domain.TaskMirrorUpdate:
		sendErr = w.mirrorUpdate(ctx, space, task)
	default:
		sendErr = apperr.Internalf(nil, "unknown task type %q", task.TaskType)
	}

	if sendErr == nil {
		w.complete(ctx, task)
		return nil
	}

	var rl *RateLimitedError
	if errors.As(sendErr, &rl) {
		return rl
	}
	w.retryOrFail(ctx, task, sendErr)
	return nil
}

func (w *Worker) complete(ctx context.Context, task *domain.MessengerTask) {
	plan := docstore.NewPlan().Set("status", domain.TaskCompleted)
	if _, err := w.store.UpdateOne(ctx, docstore.CollTelegramTasks, taskKeyFilter(task.SpaceSlug, task.Number), plan); err != nil {
		log.Error().Err(err).Msg("messenger: mark task completed")
	}
}

// retryOrFail increments retries, failing the task once it reaches
// domain.MaxTaskRetries (spec.md §4.7 "increment retries; if retries ≥ 3,
// mark the task failed").
func (w *Worker) retryOrFail(ctx context.Context, task *domain.MessengerTask, cause error) {
	task.Retries++
	plan := docstore.NewPlan().Set("retries", task.Retries)
	if task.Retries >= domain.MaxTaskRetries {
		plan.Set("status", domain.TaskFailed).Set("error", cause.Error())
	}
	if _, err := w.store.UpdateOne(ctx, docstore.CollTelegramTasks, taskKeyFilter(task.SpaceSlug, task.Number), plan); err != nil {
		log.Error().Err(err).Msg("messenger: update task retry state")
	}
}

// fail marks task failed immediately, used for unexpected exceptions
// (spec.md §4.7 "On unexpected exceptions, mark failed and continue").
func (w *Worker) fail(ctx context.Context, task *domain.MessengerTask, cause error) {
	plan := docstore.NewPlan().Set("status", domain.TaskFailed).Set("error", cause.Error())
	if _, err := w.store.UpdateOne(ctx, docstore.CollTelegramTasks, taskKeyFilter(task.SpaceSlug, task.Number), plan); err != nil {
		log.Error().Err(err).Msg("messenger: mark task failed")
	}
}

// sendActivity renders the template matching task.TaskType and sends it as
// text to the space's activity channel (spec.md §4.7 "render the matching
// template; send a text message").
func (w *Worker) sendActivity(ctx context.Context, space *domain.Space, task *domain.MessengerTask) error {
	tmplName, data, err := w.activityContext(ctx, space, task)
	if err != nil {
		return err
	}
	tmplStr, ok := space.Templates[tmplName]
	if !ok {
		return nil
	}
	text, err := template.Render(tmplStr, data)
	if err != nil {
		log.Error().Err(err).Str("template", tmplName).Msg("messenger: render activity template")
		return nil
	}
	_, err = w.provider.SendText(ctx, task.ChannelID, text)
	return err
}

func activityTemplateName(taskType domain.TaskType) string {
	switch taskType {
	case domain.TaskActivityNoteCreated:
		return "telegram:activity_note_created"
	case domain.TaskActivityNoteUpdated:
		return "telegram:activity_note_updated"
	default:
		return "telegram:activity_comment_created"
	}
}

func (w *Worker) activityContext(ctx context.Context, space *domain.Space, task *domain.MessengerTask) (string, map[string]any, error) {
	note, err := w.notes.Get(ctx, space.Slug, task.NoteNumber)
	if err != nil {
		return "", nil, err
	}
	data := map[string]any{"note": note, "space": space, "payload": task.Payload}
	if task.TaskType == domain.TaskActivityCommentCreated {
		commentNumber, _ := task.Payload["comment_number"].(float64)
		comment, err := w.comments.Get(ctx, space.Slug, task.NoteNumber, int64(commentNumber))
		if err != nil {
			return "", nil, err
		}
		data["comment"] = comment
	}
	return activityTemplateName(task.TaskType), data, nil
}

// mirrorCreate renders "telegram:mirror", sends it as a photo (when the
// template opens with a photo directive) or text, and records the
// resulting MessengerMirror row (spec.md §4.7 "mirror_create").
func (w *Worker) mirrorCreate(ctx context.Context, space *domain.Space, task *domain.MessengerTask) error {
	note, err := w.notes.Get(ctx, space.Slug, task.NoteNumber)
	if err != nil {
		return err
	}
	tmplStr, ok := space.Templates["telegram:mirror"]
	if !ok {
		return nil
	}
	photoField, body := template.SplitMirrorTemplate(tmplStr)
	caption, err := template.Render(body, map[string]any{"note": note, "space": space})
	if err != nil {
		log.Error().Err(err).Msg("messenger: render mirror template")
		return nil
	}

	var messageID string
	format := domain.FormatText
	if photoField != "" {
		messageID, err = w.sendMirrorPhoto(ctx, space, note, task.ChannelID, photoField, caption)
		format = domain.FormatPhoto
	} else {
		messageID, err = w.provider.SendText(ctx, task.ChannelID, caption)
	}
	if err != nil {
		return err
	}

	mirror := &domain.MessengerMirror{
		SpaceSlug:     space.Slug,
		NoteNumber:    task.NoteNumber,
		ChannelID:     task.ChannelID,
		MessageID:     messageID,
		MessageFormat: format,
		CreatedAt:     time.Now().UTC(),
	}
	if err := w.store.InsertOne(ctx, docstore.CollTelegramMirrors, mirror); err != nil {
		return apperr.Internalf(err, "insert messenger mirror")
	}
	return nil
}

func (w *Worker) sendMirrorPhoto(ctx context.Context, space *domain.Space, note *domain.Note, channelID, photoField, caption string) (string, error) {
	tv, ok := note.Fields[photoField]
	if !ok || tv.IsNull {
		return w.provider.SendText(ctx, channelID, caption)
	}
	photo, err := w.renditions.ReadRendition(space.Slug, noteScope(note.Number), tv.Int)
	if err != nil {
		return "", apperr.Internalf(err, "read mirror photo rendition")
	}
	return w.provider.SendPhoto(ctx, channelID, photo, caption)
}

func noteScope(number int64) string {
	return strconv.FormatInt(number, 10)
}

func mirrorKeyFilter(spaceSlug string, noteNumber int64) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "note_number", Value: noteNumber},
	}}
}

// mirrorUpdate edits the existing mirror message in place, falling back to
// mirrorCreate when there is no mirror row yet or the provider reports the
// message can no longer be edited (spec.md §4.7 "mirror_update").
func (w *Worker) mirrorUpdate(ctx context.Context, space *domain.Space, task *domain.MessengerTask) error {
	var mirror domain.MessengerMirror
	found, err := w.store.FindOne(ctx, docstore.CollTelegramMirrors, docstore.Query{Filter: mirrorKeyFilter(space.Slug, task.NoteNumber)}, &mirror)
	if err != nil {
		return apperr.Internalf(err, "find messenger mirror")
	}
	if !found {
		return w.mirrorCreate(ctx, space, task)
	}

	note, err := w.notes.Get(ctx, space.Slug, task.NoteNumber)
	if err != nil {
		return err
	}
	tmplStr, ok := space.Templates["telegram:mirror"]
	if !ok {
		return nil
	}
	_, body := template.SplitMirrorTemplate(tmplStr)
	caption, err := template.Render(body, map[string]any{"note": note, "space": space})
	if err != nil {
		log.Error().Err(err).Msg("messenger: render mirror template")
		return nil
	}

	if mirror.MessageFormat == domain.FormatPhoto {
		err = w.provider.EditPhotoCaption(ctx, mirror.ChannelID, mirror.MessageID, caption)
	} else {
		err = w.provider.EditText(ctx, mirror.ChannelID, mirror.MessageID, caption)
	}
	if errors.Is(err, ErrMessageNotEditable) {
		if _, delErr := w.store.DeleteOne(ctx, docstore.CollTelegramMirrors, mirrorKeyFilter(space.Slug, task.NoteNumber)); delErr != nil {
			return apperr.Internalf(delErr, "delete stale messenger mirror")
		}
		return w.mirrorCreate(ctx, space, task)
	}
	if err != nil {
		return err
	}
	if _, err := w.store.UpdateOne(ctx, docstore.CollTelegramMirrors, mirrorKeyFilter(space.Slug, task.NoteNumber), docstore.NewPlan().Set("updated_at", time.Now().UTC())); err != nil {
		return apperr.Internalf(err, "update messenger mirror timestamp")
	}
	return nil
}

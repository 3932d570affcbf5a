package messenger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/testutil"
)

type sentText struct {
	channelID, text string
}
type sentPhoto struct {
	channelID, caption string
	photo              []byte
}

type fakeProvider struct {
	texts      []sentText
	photos     []sentPhoto
	editErr    error
	nextID     int64
	sendErr    error
	editedText []sentText
}

func (f *fakeProvider) SendText(ctx context.Context, channelID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	f.texts = append(f.texts, sentText{channelID, text})
	return itoa(f.nextID), nil
}

func (f *fakeProvider) SendPhoto(ctx context.Context, channelID string, photo []byte, caption string) (string, error) {
	f.nextID++
	f.photos = append(f.photos, sentPhoto{channelID, caption, photo})
	return itoa(f.nextID), nil
}

func (f *fakeProvider) EditText(ctx context.Context, channelID, messageID, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.editedText = append(f.editedText, sentText{channelID, text})
	return nil
}

func (f *fakeProvider) EditPhotoCaption(ctx context.Context, channelID, messageID, caption string) error {
	return f.editErr
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type fakeRenditions struct {
	data []byte
	err  error
}

func (f *fakeRenditions) ReadRendition(spaceSlug, noteScope string, number int64) ([]byte, error) {
	return f.data, f.err
}

type fakeNotes struct {
	notes map[int64]*domain.Note
}

func (f *fakeNotes) Get(ctx context.Context, spaceSlug string, number int64) (*domain.Note, error) {
	return f.notes[number], nil
}

type fakeComments struct{}

func (f *fakeComments) Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*domain.Comment, error) {
	return &domain.Comment{SpaceSlug: spaceSlug, NoteNumber: noteNumber, Number: number, Content: "hi"}, nil
}

type fakeSpaces struct {
	space *domain.Space
}

func (f *fakeSpaces) Get(ctx context.Context, slug string) (*domain.Space, error) { return f.space, nil }

func testSpace() *domain.Space {
	return testutil.Space(
		testutil.WithSlug("proj"),
		testutil.WithTemplates(map[string]string{
			"telegram:activity_note_created": "note {{ .note.Number }} created",
			"telegram:mirror":                "mirror of {{ .note.Number }}",
		}),
		testutil.WithTelegram(domain.MessengerSettings{ActivityChannelID: "100", MirrorChannelID: "200"}),
	)
}

func TestEnqueueSkipsWhenNoChannelConfigured(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	svc := New(store, counter.New(store))
	space := &domain.Space{Slug: "proj"}
	require.NoError(t, svc.Enqueue(context.Background(), space, domain.TaskActivityNoteCreated, 1, nil))

	var tasks []domain.MessengerTask
	require.NoError(t, store.Collection(docstore.CollTelegramTasks, &tasks))
	require.Empty(t, tasks)
}

func TestEnqueueInsertsPendingTask(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	svc := New(store, counter.New(store))
	space := testSpace()
	require.NoError(t, svc.Enqueue(context.Background(), space, domain.TaskActivityNoteCreated, 1, nil))

	var tasks []domain.MessengerTask
	require.NoError(t, store.Collection(docstore.CollTelegramTasks, &tasks))
	require.Len(t, tasks, 1)
	require.Equal(t, domain.TaskPending, tasks[0].Status)
	require.Equal(t, "100", tasks[0].ChannelID)
}

func newWorker(t *testing.T, store docstore.Store, provider Provider, renditions RenditionReader, notes NoteGetter, space *domain.Space) *Worker {
	t.Helper()
	return NewWorker(store, provider, renditions, notes, &fakeComments{}, &fakeSpaces{space: space})
}

func TestProcessActivityTaskSendsRenderedText(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1, Author: "alice"}}}
	provider := &fakeProvider{}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskActivityNoteCreated, ChannelID: "100", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.texts, 1)
	require.Equal(t, "note 1 created", provider.texts[0].text)

	var tasks []domain.MessengerTask
	require.NoError(t, store.Collection(docstore.CollTelegramTasks, &tasks))
	require.Equal(t, domain.TaskCompleted, tasks[0].Status)
}

func TestProcessMirrorCreateInsertsTextMirror(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskMirrorCreate, ChannelID: "200", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.texts, 1)

	var mirrors []domain.MessengerMirror
	require.NoError(t, store.Collection(docstore.CollTelegramMirrors, &mirrors))
	require.Len(t, mirrors, 1)
	require.Equal(t, domain.FormatText, mirrors[0].MessageFormat)
}

func TestProcessMirrorCreateSendsPhotoWhenDirectivePresent(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	space.Templates["telegram:mirror"] = "{# photo: cover #}\nlook: {{ .note.Number }}"
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1, Fields: map[string]domain.TypedValue{"cover": domain.ImageValue(5)}}}}
	provider := &fakeProvider{}
	renditions := &fakeRenditions{data: []byte("webpbytes")}
	w := newWorker(t, store, provider, renditions, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskMirrorCreate, ChannelID: "200", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.photos, 1)
	require.Equal(t, []byte("webpbytes"), provider.photos[0].photo)

	var mirrors []domain.MessengerMirror
	require.NoError(t, store.Collection(docstore.CollTelegramMirrors, &mirrors))
	require.Equal(t, domain.FormatPhoto, mirrors[0].MessageFormat)
}

func TestProcessMirrorUpdateEditsExistingMirror(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramMirrors, &domain.MessengerMirror{
		SpaceSlug: "proj", NoteNumber: 1, ChannelID: "200", MessageID: "7", MessageFormat: domain.FormatText, CreatedAt: time.Now().UTC(),
	}))

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 2, TaskType: domain.TaskMirrorUpdate, ChannelID: "200", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.editedText, 1)
	require.Empty(t, provider.texts)
}

func TestProcessMirrorUpdateFallsBackToCreateWhenNoMirrorRow(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskMirrorUpdate, ChannelID: "200", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.texts, 1)

	var mirrors []domain.MessengerMirror
	require.NoError(t, store.Collection(docstore.CollTelegramMirrors, &mirrors))
	require.Len(t, mirrors, 1)
}

func TestProcessMirrorUpdateFallsBackWhenMessageNotEditable(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{editErr: ErrMessageNotEditable}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramMirrors, &domain.MessengerMirror{
		SpaceSlug: "proj", NoteNumber: 1, ChannelID: "200", MessageID: "7", MessageFormat: domain.FormatText, CreatedAt: time.Now().UTC(),
	}))

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 2, TaskType: domain.TaskMirrorUpdate, ChannelID: "200", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.Nil(t, rl)
	require.Len(t, provider.texts, 1)

	var mirrors []domain.MessengerMirror
	require.NoError(t, store.Collection(docstore.CollTelegramMirrors, &mirrors))
	require.Len(t, mirrors, 1)
	require.Equal(t, "proj", mirrors[0].SpaceSlug)
}

func TestProcessRateLimitedLeavesTaskPending(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{sendErr: &RateLimitedError{RetryAfter: 5 * time.Second}}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskActivityNoteCreated, ChannelID: "100", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	rl := w.process(context.Background(), task)
	require.NotNil(t, rl)
	require.Equal(t, 5*time.Second, rl.RetryAfter)

	var tasks []domain.MessengerTask
	require.NoError(t, store.Collection(docstore.CollTelegramTasks, &tasks))
	require.Equal(t, domain.TaskPending, tasks[0].Status)
	require.Equal(t, 0, tasks[0].Retries)
}

func TestProcessOtherErrorIncrementsRetriesThenFails(t *testing.T) {
	t.Parallel()
	store := docstore.NewMock()
	space := testSpace()
	notes := &fakeNotes{notes: map[int64]*domain.Note{1: {SpaceSlug: "proj", Number: 1}}}
	provider := &fakeProvider{sendErr: errPermanent}
	w := newWorker(t, store, provider, &fakeRenditions{}, notes, space)

	task := &domain.MessengerTask{SpaceSlug: "proj", Number: 1, TaskType: domain.TaskActivityNoteCreated, ChannelID: "100", NoteNumber: 1, Status: domain.TaskPending}
	require.NoError(t, store.InsertOne(context.Background(), docstore.CollTelegramTasks, task))

	for i := 1; i <= domain.MaxTaskRetries; i++ {
		var current domain.MessengerTask
		found, err := store.FindOne(context.Background(), docstore.CollTelegramTasks, docstore.Query{Filter: taskKeyFilter("proj", 1)}, &current)
		require.NoError(t, err)
		require.True(t, found)

		rl := w.process(context.Background(), &current)
		require.Nil(t, rl)
	}

	var tasks []domain.MessengerTask
	require.NoError(t, store.Collection(docstore.CollTelegramTasks, &tasks))
	require.Equal(t, domain.TaskFailed, tasks[0].Status)
	require.Equal(t, domain.MaxTaskRetries, tasks[0].Retries)
}

type permanentErr struct{}

func (permanentErr) Error() string { return "permanent provider error" }

var errPermanent = permanentErr{}

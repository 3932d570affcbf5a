package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/spacenote/spacenote/internal/access"
	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/blobstore"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/config"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/export"
	"github.com/spacenote/spacenote/internal/facade"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/identity"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/logging"
	"github.com/spacenote/spacenote/internal/messenger"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/spacecache"
)

const renditionConcurrency = 4

// app holds every wired service the CLI commands share, plus the resources
// that need an orderly Close (mirroring linear-fuse's LinearFS.Close).
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  docstore.Store
	cache  *spacecache.Spaces
	pool   *image.Pool
	idp    *identity.Service
	facade *facade.Facade
	export *export.Service
	msgr   *messenger.Service
	notes  *note.Service
	comm   *comment.Service
	spaces *space.Service
}

// wire builds the full dependency graph described in DESIGN.md's
// internal/facade entry, opening the configured SQLite store and blob
// directory. Callers must defer app.Close().
func wire(cfg *config.Config) (*app, error) {
	log := logging.New(logging.Config{Level: cfg.LogLevel, Debug: cfg.Debug})

	dbPath := cfg.DatabaseURL
	if dbPath == "" {
		dbPath = ":memory:"
	}
	store, err := docstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	blobsDir := cfg.AttachmentsPath
	if blobsDir == "" {
		blobsDir = "./data/attachments"
	}
	blobs, err := blobstore.Open(blobsDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	fields := field.NewRegistry()
	counters := counter.New(store)
	cache := spacecache.NewSpaces()
	spaces := space.New(store, cache, fields)

	msgr := messenger.New(store, counters)
	extractor := image.NewExtractor()
	pool := image.NewPool(blobs, renditionConcurrency)
	attachments := attachment.New(store, counters, blobs, extractor, pool)
	notes := note.New(store, counters, fields, attachments, msgr)
	comments := comment.New(store, counters, notes, msgr)
	idp := identity.New(store)
	guard := access.New(idp, idp, spaces, comments, attachments)
	exportSvc := export.New(store, counters, idp)

	f := facade.New(guard, idp, spaces, notes, comments, attachments, msgr, counters, exportSvc, fields, pool, image.Convert)

	a := &app{
		cfg: cfg, log: log, store: store, cache: cache, pool: pool,
		idp: idp, facade: f, export: exportSvc, msgr: msgr, notes: notes, comm: comments, spaces: spaces,
	}
	if err := a.ensureAdmin(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ensureAdmin creates the reserved admin account on first run, using
// SPACENOTE_ADMIN_PASSWORD if set or a random password printed once to
// stderr otherwise — there is no self-registration path (spec.md leaves
// account provisioning outside the core domain).
func (a *app) ensureAdmin() error {
	ctx := context.Background()
	if _, err := a.idp.GetUser(ctx, domain.AdminUsername); err == nil {
		return nil
	}
	password := os.Getenv("SPACENOTE_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		var err error
		password, err = randomPassword()
		if err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
	}
	if _, err := a.idp.CreateUser(ctx, domain.AdminUsername, password); err != nil {
		return fmt.Errorf("bootstrap admin account: %w", err)
	}
	if generated {
		fmt.Fprintf(os.Stderr, "generated admin password: %s\n", password)
	}
	return nil
}

func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newWorker builds the messenger drain loop (spec.md §4.7 "single-worker
// loop") if a Telegram bot token is configured, matching
// messenger.Worker's doc comment that the worker runs only when a bot
// credential is configured.
func (a *app) newWorker() *messenger.Worker {
	if a.cfg.TelegramBotToken == "" {
		return nil
	}
	provider := messenger.NewTelegramProvider(a.cfg.TelegramBotToken)
	return messenger.NewWorker(a.store, provider, a.pool, a.notes, a.comm, a.spaces)
}

func (a *app) Close() {
	if a.pool != nil {
		_ = a.pool.Shutdown(context.Background())
	}
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

package notes

import (
	"context"
	"strings"
	"time"

	"github.com/kuitang/notes-api/internal/errs"
	"github.com/kuitang/notes-api/internal/logutil"
	"github.com/kuitang/notes-api/internal/obs"
)

const (
	// DefaultStoreTimeout bounds a single store call when the caller passes 0.
	DefaultStoreTimeout = 5 * time.Second

	MsgInvalidID    = "The `id` is not valid"
	MsgMissingTitle = "Missing `title` in request body"
	MsgNotFound     = "Note not found"
)

// Service handles note CRUD operations against a Store.
type Service struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a notes service. A non-positive timeout uses
// DefaultStoreTimeout.
func NewService(store Store, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Service{
		store:   store,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns every note whose title contains searchTerm, case-insensitively.
// An empty searchTerm lists everything. Results are ordered by created.
func (s *Service) List(ctx context.Context, searchTerm string) ([]Note, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.store.List(ctx, ListFilter{TitleContains: searchTerm})
	if err != nil {
		return nil, s.storeFailure(ctx, "list", err, "search_term", logutil.TruncateForLog(searchTerm, 64))
	}
	if out == nil {
		out = []Note{}
	}
	return out, nil
}

// CheckID returns InvalidArgument when id is not in the store's id format.
func (s *Service) CheckID(id string) error {
	if !s.store.ValidID(id) {
		return errs.New(errs.InvalidArgument, MsgInvalidID)
	}
	return nil
}

// Get retrieves a note by ID
func (s *Service) Get(ctx context.Context, id string) (*Note, error) {
	if err := s.CheckID(id); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	note, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeFailure(ctx, "get", err, "note_id", id)
	}
	if !found {
		return nil, errs.New(errs.NotFound, MsgNotFound)
	}
	return note, nil
}

// Create creates a new note
func (s *Service) Create(ctx context.Context, params CreateNoteParams) (*Note, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, MsgMissingTitle)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	note, err := s.store.Insert(ctx, NewNote{
		Title:   params.Title,
		Content: params.Content,
		Tags:    params.Tags,
		Created: s.now(),
	})
	if err != nil {
		return nil, s.storeFailure(ctx, "insert", err)
	}
	obs.From(ctx).Debug("note_created", "pkg", "notes", "note_id", note.ID)
	return note, nil
}

// Update replaces the title, and the content when supplied, of an existing note.
func (s *Service) Update(ctx context.Context, id string, params UpdateNoteParams) (*Note, error) {
	if err := s.CheckID(id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, errs.New(errs.InvalidArgument, MsgMissingTitle)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	note, found, err := s.store.Update(ctx, id, NotePatch{Title: params.Title, Content: params.Content})
	if err != nil {
		return nil, s.storeFailure(ctx, "update", err, "note_id", id)
	}
	if !found {
		return nil, errs.New(errs.NotFound, MsgNotFound)
	}
	return note, nil
}

// Delete removes a note. An id the store could never have issued is
// reported as not found.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.store.ValidID(id) {
		return errs.New(errs.NotFound, MsgNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return s.storeFailure(ctx, "delete", err, "note_id", id)
	}
	if !found {
		return errs.New(errs.NotFound, MsgNotFound)
	}
	obs.From(ctx).Debug("note_deleted", "pkg", "notes", "note_id", id)
	return nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		obs.From(ctx).Warn("store_ping_failed", "pkg", "notes", "error", err)
		return errs.Wrap(errs.Unavailable, "store unavailable", err)
	}
	return nil
}

func (s *Service) storeFailure(ctx context.Context, op string, err error, attrs ...any) error {
	attrs = append([]any{"pkg", "notes", "op", op, "error", err}, attrs...)
	obs.From(ctx).Error("store_failure", attrs...)
	return errs.Store(op, err)
}

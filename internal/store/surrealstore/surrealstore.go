// Package surrealstore is the SurrealDB note store.
package surrealstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/kuitang/notes-api/internal/notes"
)

// Table holds note records, keyed note:⟨uuid⟩.
const Table = "note"

// Options configures Open.
type Options struct {
	// URL is the RPC endpoint, e.g. ws://localhost:8000/rpc.
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store implements notes.Store on SurrealDB using parameterized SurrealQL.
type Store struct {
	db *surrealdb.DB
}

var _ notes.Store = (*Store)(nil)

type noteRecord struct {
	ID      *models.RecordID      `json:"id,omitempty"`
	Title   string                `json:"title"`
	Content string                `json:"content"`
	Created models.CustomDateTime `json:"created"`
	Tags    []string              `json:"tags,omitempty"`
}

func (r noteRecord) toNote() notes.Note {
	var id string
	if r.ID != nil {
		id = fmt.Sprint(r.ID.ID)
	}
	return notes.Note{
		ID:      id,
		Title:   r.Title,
		Content: r.Content,
		Created: r.Created.Time.UTC(),
		Tags:    r.Tags,
	}
}

// Open connects, signs in, selects the namespace and database, and defines
// the created index.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, errors.New("surrealdb URL is required")
	}

	db, err := surrealdb.FromEndpointURLString(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if opts.Username != "" && opts.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": opts.Username,
			"pass": opts.Password,
		}); err != nil {
			_ = db.Close(context.Background())
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, opts.Namespace, opts.Database); err != nil {
		_ = db.Close(context.Background())
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := query[any](ctx, s.db,
		`DEFINE INDEX IF NOT EXISTS note_created ON TABLE note FIELDS created`, nil)
	if err != nil {
		return fmt.Errorf("failed to define note index: %w", err)
	}
	return nil
}

// query runs a single SurrealQL statement and returns its result, turning a
// statement-level ERR status into an error.
func query[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (T, error) {
	var zero T
	res, err := surrealdb.Query[T](ctx, db, sql, vars)
	if err != nil {
		return zero, err
	}
	if res == nil || len(*res) == 0 {
		return zero, nil
	}
	first := (*res)[0]
	if first.Status != "" && first.Status != "OK" {
		return zero, fmt.Errorf("surrealql status %s", first.Status)
	}
	return first.Result, nil
}

func canonicalID(id string) (string, bool) {
	if len(id) != 36 {
		return "", false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func recordID(key string) models.RecordID {
	return models.NewRecordID(Table, key)
}

// ValidID reports whether id is a hyphenated UUID.
func (s *Store) ValidID(id string) bool {
	_, ok := canonicalID(id)
	return ok
}

// List matches titles with string::contains on lower-cased values, so the
// term is always literal.
func (s *Store) List(ctx context.Context, filter notes.ListFilter) ([]notes.Note, error) {
	sql := `SELECT * FROM note ORDER BY created ASC, id ASC`
	vars := map[string]any{}
	if filter.TitleContains != "" {
		sql = `SELECT * FROM note WHERE string::contains(string::lowercase(title), string::lowercase($term)) ORDER BY created ASC, id ASC`
		vars["term"] = filter.TitleContains
	}

	records, err := query[[]noteRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	out := make([]notes.Note, 0, len(records))
	for _, r := range records {
		out = append(out, r.toNote())
	}
	return out, nil
}

// Get retrieves a note by ID
func (s *Store) Get(ctx context.Context, id string) (*notes.Note, bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, false, nil
	}
	records, err := query[[]noteRecord](ctx, s.db, `SELECT * FROM $rid`, map[string]any{
		"rid": recordID(key),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read note: %w", err)
	}
	if len(records) == 0 || records[0].ID == nil {
		return nil, false, nil
	}
	n := records[0].toNote()
	return &n, true, nil
}

// Insert creates note:⟨uuidv7⟩. UUIDv7 keys sort by creation time, which
// keeps the id tie-break in List stable for notes created in the same instant.
func (s *Store) Insert(ctx context.Context, in notes.NewNote) (*notes.Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate note id: %w", err)
	}

	rec, err := surrealdb.Create[noteRecord](ctx, s.db, recordID(id.String()), noteRecord{
		Title:   in.Title,
		Content: in.Content,
		Created: models.CustomDateTime{Time: in.Created.UTC().Truncate(time.Microsecond)},
		Tags:    in.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	if rec == nil || rec.ID == nil {
		return nil, errors.New("failed to create note: empty result")
	}
	n := rec.toNote()
	return &n, nil
}

// Update sets title (and content when present) on an existing record and
// returns it as it is after the update. The WHERE guard keeps UPDATE from
// creating a record that does not exist.
func (s *Store) Update(ctx context.Context, id string, patch notes.NotePatch) (*notes.Note, bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, false, nil
	}

	set := []string{"title = $title"}
	vars := map[string]any{"rid": recordID(key), "title": patch.Title}
	if patch.Content != nil {
		set = append(set, "content = $content")
		vars["content"] = *patch.Content
	}
	sql := `UPDATE $rid SET ` + strings.Join(set, ", ") + ` WHERE created != NONE RETURN AFTER`

	records, err := query[[]noteRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update note: %w", err)
	}
	if len(records) == 0 || records[0].ID == nil {
		return nil, false, nil
	}
	n := records[0].toNote()
	return &n, true, nil
}

// Delete removes a note and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return false, nil
	}
	records, err := query[[]noteRecord](ctx, s.db, `DELETE $rid RETURN BEFORE`, map[string]any{
		"rid": recordID(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	return len(records) > 0 && records[0].ID != nil, nil
}

// Ping runs a trivial statement.
func (s *Store) Ping(ctx context.Context) error {
	_, err := query[bool](ctx, s.db, `RETURN true`, nil)
	return err
}

// Close closes the connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// Clear deletes every note. Tests use it to reset state.
func (s *Store) Clear(ctx context.Context) error {
	_, err := query[any](ctx, s.db, `DELETE note`, nil)
	return err
}

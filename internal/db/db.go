// Package db is the embedded SQLite (SQLCipher) note store.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/notes-api/internal/notes"
)

const (
	// MemoryPath opens a private in-memory database instead of a file.
	MemoryPath = ":memory:"

	// MaxOpenConns is the maximum number of open connections for a file database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections for a file database
	MaxIdleConns = 2

	// KeyBytes is the SQLCipher raw key length.
	KeyBytes = 32
)

// Options configures Open.
type Options struct {
	// Path is the database file, or MemoryPath.
	Path string
	// Name distinguishes in-memory databases that share a process.
	Name string
	// Key is an optional hex-encoded 32-byte SQLCipher key.
	Key string
}

// Store implements notes.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ notes.Store = (*Store)(nil)

// Open opens (creating if needed) the database and applies NotesSchema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dsn, memory, err := buildDSN(opts)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open notes database: %w", err)
	}

	if memory {
		// A shared-cache memory database lives only as long as a connection
		// holds it, and concurrent shared-cache writers hit table locks.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(MaxOpenConns)
		sqlDB.SetMaxIdleConns(MaxIdleConns)
	}

	// Verify connection and encryption by executing a simple query.
	// If the encryption key is wrong, this will fail.
	var sqliteVersion string
	if err := sqlDB.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify notes database connection: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, NotesSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize notes schema: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

// NewStoreFromSQL wraps an existing sql.DB that already has NotesSchema applied.
func NewStoreFromSQL(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB}
}

// DB returns the underlying sql.DB for direct access when needed
func (s *Store) DB() *sql.DB {
	return s.db
}

func buildDSN(opts Options) (dsn string, memory bool, err error) {
	var keyParams string
	if opts.Key != "" {
		raw, err := hex.DecodeString(opts.Key)
		if err != nil || len(raw) != KeyBytes {
			return "", false, fmt.Errorf("SQLite key must be %d hex-encoded bytes", KeyBytes)
		}
		// Format: _pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		keyParams = fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", strings.ToLower(opts.Key))
	}

	if opts.Path == "" || opts.Path == MemoryPath {
		name := opts.Name
		if name == "" {
			name = "notes-" + uuid.NewString()
		}
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
		if keyParams != "" {
			dsn += "&" + keyParams
		}
		return dsn, true, nil
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", false, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	dsn = opts.Path
	if keyParams != "" {
		dsn = appendSQLiteParams(dsn, keyParams)
	}
	return appendSQLiteParams(dsn, sqliteCommonParams()), false, nil
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// canonicalID returns the lowercase hyphenated form of a UUID note id.
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

// ValidID reports whether id is a hyphenated UUID.
func (s *Store) ValidID(id string) bool {
	_, ok := canonicalID(id)
	return ok
}

const selectNoteColumns = `SELECT id, title, content, tags, created FROM notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*notes.Note, error) {
	var (
		n       notes.Note
		tags    sql.NullString
		created int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &tags, &created); err != nil {
		return nil, err
	}
	n.Created = time.UnixMilli(created).UTC()
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &n.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for note %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

// List returns notes whose title contains filter.TitleContains, compared
// after Unicode lower-casing.
func (s *Store) List(ctx context.Context, filter notes.ListFilter) ([]notes.Note, error) {
	query := selectNoteColumns
	var args []any
	if filter.TitleContains != "" {
		query += ` WHERE instr(casefold(title), casefold(?)) > 0`
		args = append(args, filter.TitleContains)
	}
	query += ` ORDER BY created ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	out := []notes.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return out, nil
}

// Get retrieves a note by ID
func (s *Store) Get(ctx context.Context, id string) (*notes.Note, bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, false, nil
	}
	n, err := scanNote(s.db.QueryRowContext(ctx, selectNoteColumns+` WHERE id = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read note: %w", err)
	}
	return n, true, nil
}

// Insert stores a new note under a fresh UUIDv7 id.
func (s *Store) Insert(ctx context.Context, in notes.NewNote) (*notes.Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate note id: %w", err)
	}

	var tags sql.NullString
	if len(in.Tags) > 0 {
		encoded, err := json.Marshal(in.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}
		tags = sql.NullString{String: string(encoded), Valid: true}
	}

	created := in.Created.UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, content, tags, created) VALUES (?, ?, ?, ?, ?)`,
		id.String(), in.Title, in.Content, tags, created.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	return &notes.Note{
		ID:      id.String(),
		Title:   in.Title,
		Content: in.Content,
		Created: created,
		Tags:    in.Tags,
	}, nil
}

// Update applies patch and returns the post-update note.
func (s *Store) Update(ctx context.Context, id string, patch notes.NotePatch) (*notes.Note, bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin update: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if patch.Content != nil {
		res, err = tx.ExecContext(ctx, `UPDATE notes SET title = ?, content = ? WHERE id = ?`, patch.Title, *patch.Content, key)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE notes SET title = ? WHERE id = ?`, patch.Title, key)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	n, err := scanNote(tx.QueryRowContext(ctx, selectNoteColumns+` WHERE id = ?`, key))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read updated note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit update: %w", err)
	}
	return n, true, nil
}

// Delete removes a note and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	key, ok := canonicalID(id)
	if !ok {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete result: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of stored notes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

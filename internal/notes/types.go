package notes

import (
	"context"
	"time"
)

// Note is a persisted note.
type Note struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
	Tags    []string  `json:"tags,omitempty"`
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateNoteParams contains parameters for updating a note.
// Content is a pointer so an omitted field leaves the stored content alone.
type UpdateNoteParams struct {
	Title   string  `json:"title"`
	Content *string `json:"content,omitempty"`
}

// NewNote is what the service hands a Store to insert. The store assigns
// the id; Created is stamped by the service so every backend agrees on it.
type NewNote struct {
	Title   string
	Content string
	Tags    []string
	Created time.Time
}

// NotePatch replaces the title and, when Content is non-nil, the content.
type NotePatch struct {
	Title   string
	Content *string
}

// ListFilter narrows List. An empty TitleContains matches every note.
type ListFilter struct {
	TitleContains string
}

// Store is a note backend. Implementations own their connection lifecycle:
// they are opened once at startup and closed at shutdown.
//
// Get, Update and Delete report absence through the found bool rather than an
// error so callers never have to sniff driver-specific sentinels.
type Store interface {
	// ValidID reports whether id is syntactically valid for this backend.
	ValidID(id string) bool

	// List returns matching notes ordered by Created ascending.
	List(ctx context.Context, filter ListFilter) ([]Note, error)
	Get(ctx context.Context, id string) (note *Note, found bool, err error)
	Insert(ctx context.Context, n NewNote) (*Note, error)
	// Update returns the post-update note.
	Update(ctx context.Context, id string, patch NotePatch) (note *Note, found bool, err error)
	Delete(ctx context.Context, id string) (found bool, err error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

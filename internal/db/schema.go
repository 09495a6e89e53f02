package db

// NotesSchema creates the notes table. Every statement is idempotent so it
// runs on each open.
//
// created is unix milliseconds. tags is a JSON array, NULL when absent.
const NotesSchema = `
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK (length(title) > 0),
    content TEXT NOT NULL DEFAULT '',
    tags TEXT,
    created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_created ON notes(created, id);
`

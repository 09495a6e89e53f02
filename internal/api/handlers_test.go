package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notes-api/internal/notes"
	"github.com/kuitang/notes-api/internal/testdb"
)

type apiEnv struct {
	mux *http.ServeMux
}

// tester is satisfied by both *testing.T and *rapid.T.
type tester interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

func newAPIEnv(t tester, store notes.Store, maxBody int64) *apiEnv {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(notes.NewService(store, time.Second), maxBody).RegisterRoutes(mux)
	return &apiEnv{mux: mux}
}

func newSQLiteEnv(t *testing.T) *apiEnv {
	t.Helper()
	return newAPIEnv(t, testdb.MustStoreInMemory(t, "api"), 0)
}

func (e *apiEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) create(t tester, title, content string) notes.Note {
	t.Helper()
	body, err := json.Marshal(map[string]string{"title": title, "content": content})
	require.NoError(t, err)
	rec := e.do(http.MethodPost, "/notes", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var n notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	return n
}

func decodeError(t tester, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e.Error
}

func TestCreateNote_ReturnsCreatedWithLocation(t *testing.T) {
	env := newSQLiteEnv(t)

	rec := env.do(http.MethodPost, "/notes", `{"title":"New","content":"c","tags":["a","b"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var n notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "New", n.Title)
	assert.Equal(t, "c", n.Content)
	assert.Equal(t, []string{"a", "b"}, n.Tags)
	assert.False(t, n.Created.IsZero())
	assert.Equal(t, "/notes/"+n.ID, rec.Header().Get("Location"))
}

func TestCreateNote_MissingTitle(t *testing.T) {
	env := newSQLiteEnv(t)

	for _, body := range []string{`{"content":"no title"}`, `{"title":"   "}`, `{}`, ``, `null`} {
		rec := env.do(http.MethodPost, "/notes", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, notes.MsgMissingTitle, decodeError(t, rec))
	}

	list := env.do(http.MethodGet, "/notes", "")
	assert.JSONEq(t, `[]`, list.Body.String())
}

func TestCreateNote_InvalidJSON(t *testing.T) {
	env := newSQLiteEnv(t)

	for _, body := range []string{`{"title":`, `[1,2]`, `"str"`, `{"title":5}`, `{"title":"a"} {"title":"b"}`} {
		rec := env.do(http.MethodPost, "/notes", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, MsgInvalidJSON, decodeError(t, rec))
	}
}

func TestCreateNote_BodyTooLarge(t *testing.T) {
	env := newAPIEnv(t, testdb.MustStoreInMemory(t, "api-large"), 64)

	body := `{"title":"t","content":"` + strings.Repeat("x", 200) + `"}`
	rec := env.do(http.MethodPost, "/notes", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBodyTooLarge, decodeError(t, rec))
}

func TestGetNote(t *testing.T) {
	env := newSQLiteEnv(t)
	n := env.create(t, "title", "content")

	rec := env.do(http.MethodGet, "/notes/"+n.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, n.ID, got.ID)
	assert.True(t, n.Created.Equal(got.Created))

	rec = env.do(http.MethodGet, "/notes/not-an-id", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, notes.MsgInvalidID, decodeError(t, rec))

	rec = env.do(http.MethodGet, "/notes/"+uuid.Must(uuid.NewV7()).String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, notes.MsgNotFound, decodeError(t, rec))
}

func TestGetNoteHTML(t *testing.T) {
	env := newSQLiteEnv(t)
	n := env.create(t, "md", "# Heading\n\n**bold** <script>alert(1)</script>")

	rec := env.do(http.MethodGet, "/notes/"+n.ID+"/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.Contains(t, body, "Heading</h1>")
	assert.NotContains(t, body, "<script")

	rec = env.do(http.MethodGet, "/notes/bogus/html", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateNote(t *testing.T) {
	env := newSQLiteEnv(t)
	n := env.create(t, "before", "old content")

	rec := env.do(http.MethodPut, "/notes/"+n.ID, `{"title":"after","content":"new content"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "new content", got.Content)
	assert.True(t, n.Created.Equal(got.Created))

	// Omitting content keeps the stored value.
	rec = env.do(http.MethodPut, "/notes/"+n.ID, `{"title":"again"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "again", got.Title)
	assert.Equal(t, "new content", got.Content)
}

func TestUpdateNote_ValidationOrder(t *testing.T) {
	env := newSQLiteEnv(t)
	n := env.create(t, "t", "c")
	missing := uuid.Must(uuid.NewV7()).String()

	// Invalid id wins over a bad body.
	rec := env.do(http.MethodPut, "/notes/nope", `{"content":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, notes.MsgInvalidID, decodeError(t, rec))

	rec = env.do(http.MethodPut, "/notes/"+n.ID, `{"content":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, notes.MsgMissingTitle, decodeError(t, rec))

	// Missing title is reported before the store is asked about the id.
	rec = env.do(http.MethodPut, "/notes/"+missing, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, notes.MsgMissingTitle, decodeError(t, rec))

	rec = env.do(http.MethodPut, "/notes/"+missing, `{"title":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteNote(t *testing.T) {
	env := newSQLiteEnv(t)
	n := env.create(t, "t", "c")

	rec := env.do(http.MethodDelete, "/notes/"+n.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/notes/"+n.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/notes/"+n.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/notes/garbage", "").Code)
}

func TestListNotes_WaysToCook(t *testing.T) {
	env := newSQLiteEnv(t)
	cook := env.create(t, "Ways to cook", "boil, bake, fry")
	env.create(t, "Groceries", "eggs")

	rec := env.do(http.MethodGet, "/notes?searchTerm=ways", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, cook.ID, found[0].ID)

	rec = env.do(http.MethodGet, "/notes?searchTerm=zzz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(http.MethodGet, "/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func testListNotes_OrderedByCreated(t *rapid.T) {
	store := mustStore(t)
	defer store.Close(context.Background())
	env := newAPIEnv(t, store, 0)
	count := rapid.IntRange(0, 8).Draw(t, "count")

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		title := testdb.ArbitraryNoteTitle().Draw(t, "title")
		ids = append(ids, env.create(t, title, "").ID)
	}

	rec := env.do(http.MethodGet, "/notes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var all []notes.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != count {
		t.Fatalf("expected %d notes, got %d", count, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Created.Before(all[i-1].Created) {
			t.Fatalf("notes out of order at %d", i)
		}
	}
	seen := make(map[string]bool, len(all))
	for _, n := range all {
		seen[n.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("created note %s missing from list", id)
		}
	}
}

func TestListNotes_OrderedByCreated(t *testing.T) {
	rapid.Check(t, testListNotes_OrderedByCreated)
}

func testCreateGetRoundtrip(t *rapid.T) {
	store := mustStore(t)
	defer store.Close(context.Background())
	env := newAPIEnv(t, store, 0)
	title := testdb.ArbitraryNoteTitle().Draw(t, "title")
	content := testdb.ArbitraryNoteContent().Draw(t, "content")

	created := env.create(t, title, content)
	rec := env.do(http.MethodGet, "/notes/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d: %s", rec.Code, rec.Body.String())
	}
	var got notes.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != title || got.Content != content {
		t.Fatalf("roundtrip mismatch: got (%q, %q) want (%q, %q)", got.Title, got.Content, title, content)
	}
}

func TestCreateGetRoundtrip(t *testing.T) {
	rapid.Check(t, testCreateGetRoundtrip)
}

func FuzzCreateGetRoundtrip(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCreateGetRoundtrip))
}

// failingStore answers ValidID like SQLite and fails every call with err.
type failingStore struct {
	notes.Store
	err error
}

func (s failingStore) ValidID(id string) bool { return uuid.Validate(id) == nil && len(id) == 36 }
func (s failingStore) List(context.Context, notes.ListFilter) ([]notes.Note, error) {
	return nil, s.err
}
func (s failingStore) Get(context.Context, string) (*notes.Note, bool, error) {
	return nil, false, s.err
}
func (s failingStore) Ping(context.Context) error { return s.err }

func TestStoreFailure_IsInternalAndDoesNotLeak(t *testing.T) {
	env := newAPIEnv(t, failingStore{err: errors.New("dial tcp 10.1.2.3:27017: connection refused")}, 0)

	for _, path := range []string{"/notes", "/notes/" + uuid.Must(uuid.NewV7()).String()} {
		rec := env.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, "internal error", decodeError(t, rec))
		assert.False(t, bytes.Contains(rec.Body.Bytes(), []byte("10.1.2.3")))
	}
}

func TestStoreTimeout_IsUnavailable(t *testing.T) {
	env := newAPIEnv(t, failingStore{err: context.DeadlineExceeded}, 0)
	rec := env.do(http.MethodGet, "/notes", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newSQLiteEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := newAPIEnv(t, failingStore{err: errors.New("down")}, 0)
	rec = down.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store unavailable", decodeError(t, rec))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newSQLiteEnv(t)
	rec := env.do(http.MethodPatch, "/notes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// mustStore opens a fresh store for one rapid iteration; the caller closes it.
func mustStore(t *rapid.T) notes.Store {
	s, err := testdb.NewStoreInMemory("api-rapid")
	if err != nil {
		t.Fatalf("in-memory store: %v", err)
	}
	return s
}

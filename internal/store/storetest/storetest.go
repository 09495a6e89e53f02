// Package storetest is a behavioral suite every notes.Store backend must pass.
package storetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/notes-api/internal/notes"
)

// IntegrationEnv gates tests that need real database containers.
const IntegrationEnv = "NOTES_INTEGRATION"

// RequireIntegration skips t unless NOTES_INTEGRATION=1.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run container-backed store tests", IntegrationEnv)
	}
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}
}

// Backend describes a store under test.
type Backend struct {
	// Open returns an empty store. The suite closes nothing; Open should
	// register its own cleanup.
	Open func(t *testing.T) notes.Store
	// InvalidID is well-formed for some other backend but not this one.
	InvalidID string
	// MissingID is valid for this backend but never issued.
	MissingID string
}

// Run exercises the notes.Store contract. Subtests run sequentially against
// a fresh store each.
func Run(t *testing.T, b Backend) {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("InsertGetRoundtrip", func(t *testing.T) {
		s := b.Open(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, notes.NewNote{Title: "Ways to cook", Content: "slowly", Tags: []string{"food", "home"}, Created: base})
		require.NoError(t, err)
		require.True(t, s.ValidID(created.ID), "issued id %q must be valid", created.ID)
		assert.True(t, created.Created.Equal(base))

		got, found, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Ways to cook", got.Title)
		assert.Equal(t, "slowly", got.Content)
		assert.Equal(t, []string{"food", "home"}, got.Tags)
		assert.True(t, got.Created.Equal(base), "created %v != %v", got.Created, base)
	})

	t.Run("ValidID", func(t *testing.T) {
		s := b.Open(t)
		assert.False(t, s.ValidID(""))
		assert.False(t, s.ValidID(b.InvalidID))
		assert.False(t, s.ValidID("not-an-id"))
		assert.True(t, s.ValidID(b.MissingID))
	})

	t.Run("MissingIsNotAnError", func(t *testing.T) {
		s := b.Open(t)
		ctx := context.Background()

		_, found, err := s.Get(ctx, b.MissingID)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.Update(ctx, b.MissingID, notes.NotePatch{Title: "x"})
		require.NoError(t, err)
		assert.False(t, found)

		found, err = s.Delete(ctx, b.MissingID)
		require.NoError(t, err)
		assert.False(t, found)

		all, err := s.List(ctx, notes.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, all, "Update on a missing id must not create a note")
	})

	t.Run("ListOrderAndContains", func(t *testing.T) {
		s := b.Open(t)
		ctx := context.Background()

		titles := []string{"Third draft", "first WAYS", "Ways to cook", "a.b (ways)"}
		offsets := []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour, 4 * time.Hour}
		for i, title := range titles {
			_, err := s.Insert(ctx, notes.NewNote{Title: title, Created: base.Add(offsets[i])})
			require.NoError(t, err)
		}

		all, err := s.List(ctx, notes.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"first WAYS", "Ways to cook", "Third draft", "a.b (ways)"}, titlesOf(all))

		ways, err := s.List(ctx, notes.ListFilter{TitleContains: "ways"})
		require.NoError(t, err)
		assert.Equal(t, []string{"first WAYS", "Ways to cook", "a.b (ways)"}, titlesOf(ways))

		literal, err := s.List(ctx, notes.ListFilter{TitleContains: "a.b ("})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.b (ways)"}, titlesOf(literal))

		pattern, err := s.List(ctx, notes.ListFilter{TitleContains: ".*"})
		require.NoError(t, err)
		assert.Empty(t, pattern, "search terms are literal, not patterns")

		none, err := s.List(ctx, notes.ListFilter{TitleContains: "zzz"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("UpdateReturnsAfterAndKeepsIdentity", func(t *testing.T) {
		s := b.Open(t)
		ctx := context.Background()

		orig, err := s.Insert(ctx, notes.NewNote{Title: "before", Content: "body", Created: base})
		require.NoError(t, err)

		updated, found, err := s.Update(ctx, orig.ID, notes.NotePatch{Title: "after"})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, orig.ID, updated.ID)
		assert.Equal(t, "after", updated.Title)
		assert.Equal(t, "body", updated.Content, "nil content leaves content alone")
		assert.True(t, updated.Created.Equal(orig.Created))

		content := ""
		updated, found, err = s.Update(ctx, orig.ID, notes.NotePatch{Title: "again", Content: &content})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "", updated.Content)

		got, _, err := s.Get(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, "again", got.Title)
		assert.Equal(t, "", got.Content)
		assert.True(t, got.Created.Equal(orig.Created))
	})

	t.Run("DeleteThenGone", func(t *testing.T) {
		s := b.Open(t)
		ctx := context.Background()

		n, err := s.Insert(ctx, notes.NewNote{Title: "doomed", Created: base})
		require.NoError(t, err)

		found, err := s.Delete(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, found)

		_, found, err = s.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, found)

		found, err = s.Delete(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Ping", func(t *testing.T) {
		s := b.Open(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}

func titlesOf(ns []notes.Note) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Title
	}
	return out
}

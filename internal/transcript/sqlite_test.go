package transcript

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestAppend_CreatesConversationLazily(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := NewConversationID()

	_, err := s.GetConversation(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	entry, err := s.Append(ctx, id, SourceUser, UserPayload{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, id, entry.ConversationID)
	assert.Equal(t, SourceUser, entry.Source)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.False(t, conv.CreatedAt.IsZero())
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestAppend_BumpsUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := NewConversationID()

	_, err := s.Append(ctx, id, SourceUser, UserPayload{Text: "one"})
	require.NoError(t, err)
	first, err := s.GetConversation(ctx, id)
	require.NoError(t, err)

	_, err = s.Append(ctx, id, SourceAssistant, AssistantPayload{Text: "two"})
	require.NoError(t, err)
	second, err := s.GetConversation(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt, "created_at must not move")
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestReadAll_AppendOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := NewConversationID()

	sources := []Source{SourceUser, SourceToolInvocation, SourceToolOutcome, SourceAssistant}
	for _, src := range sources {
		_, err := s.Append(ctx, id, src, map[string]string{"src": string(src)})
		require.NoError(t, err)
	}

	entries, err := s.ReadAll(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, len(sources))
	for i, e := range entries {
		assert.Equal(t, sources[i], e.Source)
	}
	assert.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	}))
}

func TestReadAll_IsolatedPerConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := NewConversationID(), NewConversationID()

	_, err := s.Append(ctx, a, SourceUser, UserPayload{Text: "for a"})
	require.NoError(t, err)
	_, err = s.Append(ctx, b, SourceUser, UserPayload{Text: "for b"})
	require.NoError(t, err)

	entries, err := s.ReadAll(ctx, a)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"text":"for a"}`, string(entries[0].Payload))
}

func TestSetLatestArtifact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := NewConversationID()

	err := s.SetLatestArtifact(ctx, id, "= Hello", []string{"cGFnZQ=="})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Append(ctx, id, SourceUser, UserPayload{Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, s.SetLatestArtifact(ctx, id, "= Hello", []string{"cGFnZQ=="}))

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "= Hello", conv.LatestMarkup)
	assert.Equal(t, []string{"cGFnZQ=="}, conv.LatestPages)
}

func TestSetTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := NewConversationID()

	_, err := s.Append(ctx, id, SourceUser, UserPayload{Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, s.SetTitle(ctx, id, "Resume draft"))

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Resume draft", conv.Title)
}

func TestListConversations_RecentFirstAndPaged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id := NewConversationID()
		ids = append(ids, id)
		_, err := s.Append(ctx, id, SourceUser, UserPayload{Text: "hi"})
		require.NoError(t, err)
	}

	all, err := s.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := s.ListConversations(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
	assert.Equal(t, all[2].ID, page[1].ID)
}

func TestNewConversationID_Format(t *testing.T) {
	id := NewConversationID()
	assert.Regexp(t, regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f-]{8}$`), id)
	assert.NotContains(t, id, ":")
	assert.NotEqual(t, id, NewConversationID())
}

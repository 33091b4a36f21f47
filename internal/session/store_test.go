package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.Turns)
	assert.False(t, s.CreatedAt.IsZero())

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAppendTurnRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Create(ctx)
	require.NoError(t, err)

	s, err = store.AppendTurn(ctx, s, Turn{Role: RoleUser, Content: "what is the refund policy?"})
	require.NoError(t, err)

	answer := Turn{
		Role:    RoleAssistant,
		Content: "See Source 1.",
		Sources: []Source{{ID: "doc-1", Score: 0.42, Metadata: map[string]any{"source_path": "policy.pdf"}}},
	}
	s, err = store.AppendTurn(ctx, s, answer)
	require.NoError(t, err)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, RoleUser, got.Turns[0].Role)
	assert.Equal(t, answer, got.Turns[len(got.Turns)-1], "turn list must end with the just-appended turn")
}

func TestMemoryStoreAppendUsesStoredStateNotStaleCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Create(ctx)
	require.NoError(t, err)

	stale := copySession(s) // both requests start from the same empty copy

	_, err = store.AppendTurn(ctx, s, Turn{Role: RoleUser, Content: "first"})
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, stale, Turn{Role: RoleUser, Content: "second"})
	require.NoError(t, err)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 2, "appends from stale copies must not lose turns")
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Create(ctx)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, appendErr := store.AppendTurn(ctx, s, Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i)})
			assert.NoError(t, appendErr)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, n)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Create(ctx)
	require.NoError(t, err)
	second, err := store.Create(ctx)
	require.NoError(t, err)

	// Touch the first session so it becomes the most recently updated.
	_, err = store.AppendTurn(ctx, first, Turn{Role: RoleUser, Content: "hello"})
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "most recently updated session first")
	assert.Equal(t, second.ID, list[1].ID)
}

func TestRecentTurns(t *testing.T) {
	turns := make([]Turn, 10)
	for i := range turns {
		turns[i] = Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	s := &Session{ID: "s", Turns: turns}

	t.Run("window smaller than history", func(t *testing.T) {
		recent := RecentTurns(s, 6)
		require.Len(t, recent, 6)
		assert.Equal(t, "turn 4", recent[0].Content)
		assert.Equal(t, "turn 9", recent[5].Content)
	})

	t.Run("window larger than history", func(t *testing.T) {
		recent := RecentTurns(s, 50)
		assert.Len(t, recent, 10)
	})

	t.Run("exact window", func(t *testing.T) {
		recent := RecentTurns(s, 10)
		assert.Len(t, recent, 10)
	})

	t.Run("zero window", func(t *testing.T) {
		assert.Empty(t, RecentTurns(s, 0))
	})
}

func TestSessionTitle(t *testing.T) {
	empty := &Session{}
	assert.Equal(t, "New Chat", empty.Title())

	short := &Session{Turns: []Turn{{Role: RoleUser, Content: "hello"}}}
	assert.Equal(t, "hello", short.Title())

	long := &Session{Turns: []Turn{{Role: RoleUser, Content: strings.Repeat("a", 100)}}}
	assert.Equal(t, strings.Repeat("a", 40), long.Title())
}

func TestSessionTitleTruncatesOnRuneBoundary(t *testing.T) {
	multibyte := &Session{Turns: []Turn{{Role: RoleUser, Content: strings.Repeat("日", 50)}}}

	title := multibyte.Title()
	assert.True(t, utf8.ValidString(title), "truncated title must stay valid UTF-8")
	assert.Equal(t, strings.Repeat("日", 40), title)

	mixed := &Session{Turns: []Turn{{Role: RoleUser, Content: strings.Repeat("a", 39) + "héllo"}}}
	assert.Equal(t, strings.Repeat("a", 39)+"h", mixed.Title())
	assert.True(t, utf8.ValidString(mixed.Title()))
}

func TestErrNotFoundIsSentinel(t *testing.T) {
	err := fmt.Errorf("loading session: %w", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
}

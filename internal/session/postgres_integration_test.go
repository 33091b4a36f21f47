//go:build integration

package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docent-ai/docent/internal/session"
	"github.com/docent-ai/docent/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := session.NewPostgresStore(testDB.Pool, nil)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		created, err := store.Create(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Empty(t, created.Turns)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := store.Get(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("append preserves order and sources", func(t *testing.T) {
		sess, err := store.Create(ctx)
		require.NoError(t, err)

		sess, err = store.AppendTurn(ctx, sess, session.Turn{
			Role: session.RoleUser, Content: "what about vacations?",
		})
		require.NoError(t, err)

		sess, err = store.AppendTurn(ctx, sess, session.Turn{
			Role:    session.RoleAssistant,
			Content: "They carry over one quarter.",
			Sources: []session.Source{{ID: "doc-1#0", Score: 0.8,
				Metadata: map[string]any{"source_path": "handbook.pdf"}}},
		})
		require.NoError(t, err)

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.Turns, 2)
		assert.Equal(t, session.RoleUser, got.Turns[0].Role)
		require.Len(t, got.Turns[1].Sources, 1)
		assert.Equal(t, "doc-1#0", got.Turns[1].Sources[0].ID)
		assert.Equal(t, "handbook.pdf", got.Turns[1].Sources[0].Metadata["source_path"])
	})

	t.Run("concurrent appends lose nothing", func(t *testing.T) {
		sess, err := store.Create(ctx)
		require.NoError(t, err)

		const writers = 10
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.AppendTurn(ctx, sess, session.Turn{
					Role: session.RoleUser, Content: "concurrent turn",
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.Turns, writers)
	})

	t.Run("list orders by recent activity", func(t *testing.T) {
		older, err := store.Create(ctx)
		require.NoError(t, err)
		newer, err := store.Create(ctx)
		require.NoError(t, err)

		_, err = store.AppendTurn(ctx, newer, session.Turn{
			Role: session.RoleUser, Content: "How do raises work?",
		})
		require.NoError(t, err)
		_, err = store.AppendTurn(ctx, older, session.Turn{
			Role: session.RoleUser, Content: "What is the dress code?",
		})
		require.NoError(t, err)

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(sessions), 2)
		assert.Equal(t, older.ID, sessions[0].ID)
		assert.Equal(t, "What is the dress code?", sessions[0].Title())
	})
}

package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/t031a5/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewDB(t *testing.T) {
	t.Run("creates database in nested directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "deep", "nested")
		store, err := NewDB(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, DefaultFileName))
		assert.NoError(t, err)
		assert.NoError(t, store.Health(context.Background()))
	})

	t.Run("idempotent migrations", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewDB(dir)
		require.NoError(t, err)
		require.NoError(t, first.RecordTurn(context.Background(), types.ConversationTurn{Kind: types.TurnUser, Content: "oi"}))
		require.NoError(t, first.Close())

		second, err := NewDB(dir)
		require.NoError(t, err)
		defer second.Close()
		n, err := second.Count(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRecordAndRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		kind := types.TurnUser
		var gestures []string
		if i%2 == 1 {
			kind = types.TurnBot
			gestures = []string{"26", "move_forward"}
		}
		require.NoError(t, store.RecordTurn(ctx, types.ConversationTurn{
			SessionID: "s1",
			Kind:      kind,
			Content:   fmt.Sprintf("turno %d", i),
			Affect:    "happy",
			Gestures:  gestures,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	turns, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "turno 3", turns[0].Content)
	assert.Equal(t, "turno 5", turns[2].Content)
	assert.Equal(t, types.TurnBot, turns[2].Kind)
	assert.Equal(t, []string{"26", "move_forward"}, turns[2].Gestures)
	assert.Nil(t, turns[1].Gestures)
	assert.True(t, turns[2].Timestamp.Equal(base.Add(5*time.Second)))

	none, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordTurnRejectsUnknownKind(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordTurn(context.Background(), types.ConversationTurn{Kind: "narration", Content: "x"})
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.RecordTurn(ctx, types.ConversationTurn{Kind: types.TurnUser, Content: "antigo", Timestamp: old}))
	require.NoError(t, store.RecordTurn(ctx, types.ConversationTurn{Kind: types.TurnUser, Content: "novo"}))

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	turns, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "novo", turns[0].Content)
}

func TestClosedStore(t *testing.T) {
	store, err := NewDB(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.RecordTurn(context.Background(), types.ConversationTurn{Kind: types.TurnUser}), ErrClosed)
	_, err = store.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSplitSQL(t *testing.T) {
	stmts := splitSQL(`
-- comment
CREATE TABLE a (x TEXT DEFAULT ';');
INSERT INTO a VALUES ('b;c');
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT ';');", stmts[0])
}

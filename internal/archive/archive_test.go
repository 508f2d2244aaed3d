package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestStoreAndLineage_FullJoin(t *testing.T) {
	d := openTestDB(t)
	ctx := t.Context()

	msg := Message{ID: "msg-1", Role: "user", Content: "hello", Timestamp: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, d.StoreMessage(ctx, msg))

	unit := SemanticUnit{
		ID:            "su-1",
		MessageID:     "msg-1",
		Content:       "user decides to retry",
		Type:          "decision",
		Concepts:      []string{"retry"},
		BlockMetadata: map[string]any{"decision_reason": "rate limits"},
	}
	require.NoError(t, d.StoreSemanticUnit(ctx, unit))

	prop := PropositionArchive{
		ID:             "prop-1",
		SemanticUnitID: "su-1",
		Content:        "user will retry on rate limit",
		Type:           "decision",
		Concepts:       []string{"retry"},
		BlockMetadata:  map[string]any{"decision_reason": "rate limits"},
	}
	require.NoError(t, d.StoreProposition(ctx, prop))

	lineage, ok, err := d.GetFullLineage(ctx, "prop-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "prop-1", lineage.Proposition.ID)
	assert.Equal(t, "su-1", lineage.Unit.ID)
	assert.Equal(t, "msg-1", lineage.Message.ID)
	assert.Equal(t, "rate limits", lineage.Unit.BlockMetadata["decision_reason"])
	assert.True(t, msg.Timestamp.Equal(lineage.Message.Timestamp))
}

func TestGetFullLineage_UnknownIDReturnsFalse(t *testing.T) {
	d := openTestDB(t)
	_, ok, err := d.GetFullLineage(t.Context(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreMessage_ReplacesNotDuplicates(t *testing.T) {
	d := openTestDB(t)
	ctx := t.Context()

	first := Message{ID: "msg-1", Role: "user", Content: "first", Timestamp: time.Now().UTC()}
	require.NoError(t, d.StoreMessage(ctx, first))

	second := Message{ID: "msg-1", Role: "user", Content: "second", Timestamp: time.Now().UTC()}
	require.NoError(t, d.StoreMessage(ctx, second))

	var count int
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ?`, "msg-1")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)

	var content string
	row = d.db.QueryRowContext(ctx, `SELECT content FROM messages WHERE id = ?`, "msg-1")
	require.NoError(t, row.Scan(&content))
	assert.Equal(t, "second", content)
}

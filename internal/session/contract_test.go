package session

import (
	"context"
	"testing"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storePair 返回两个绑定到不同身份的 Store，共享同一个后端。
type storePair func(t *testing.T) (mine, theirs Store)

func exchange(q, a string, sources ...string) (model.ChatMessage, model.ChatMessage) {
	return model.ChatMessage{Role: model.RoleUser, Content: q},
		model.ChatMessage{Role: model.RoleAssistant, Content: a, Sources: sources}
}

// runStoreContract 对任意后端执行同一组行为检查。
func runStoreContract(t *testing.T, newPair storePair) {
	ctx := context.Background()

	t.Run("CreateAndLoad", func(t *testing.T) {
		mine, _ := newPair(t)
		created, err := mine.CreateSession(ctx, "notes", "Photosynthesis")
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, "notes", created.Feature)
		assert.Equal(t, "Photosynthesis", created.Title)

		loaded, err := mine.LoadSession(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, loaded.ID)
		assert.Empty(t, loaded.Messages)
	})

	t.Run("AppendTwiceKeepsOrder", func(t *testing.T) {
		mine, _ := newPair(t)
		sess, err := mine.CreateSession(ctx, "doubt-solver", "What is PCR?")
		require.NoError(t, err)

		u1, a1 := exchange("What is PCR?", "PCR amplifies DNA.", "PCR (ch3.pdf)")
		first, err := mine.AppendExchange(ctx, sess.ID, u1, a1)
		require.NoError(t, err)
		require.Len(t, first.Messages, 2)

		u2, a2 := exchange("Who invented it?", "Kary Mullis.")
		_, err = mine.AppendExchange(ctx, sess.ID, u2, a2)
		require.NoError(t, err)

		loaded, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Messages, 4)
		roles := []string{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}
		contents := []string{"What is PCR?", "PCR amplifies DNA.", "Who invented it?", "Kary Mullis."}
		for i, m := range loaded.Messages {
			assert.Equal(t, roles[i], m.Role)
			assert.Equal(t, contents[i], m.Content)
		}
		assert.Equal(t, []string{"PCR (ch3.pdf)"}, loaded.Messages[1].Sources)
		assert.False(t, loaded.UpdatedAt.Before(sess.UpdatedAt))
	})

	t.Run("OpenSessionWritesFirstExchange", func(t *testing.T) {
		mine, _ := newPair(t)
		u, a := exchange("Define a vector", "A vector carries DNA.", "Vectors (ch2.pdf)")
		sess, err := mine.OpenSession(ctx, "notes", "Define a vector", u, a)
		require.NoError(t, err)

		loaded, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, "Define a vector", loaded.Title)
	})

	t.Run("RejectsMalformedExchange", func(t *testing.T) {
		mine, _ := newPair(t)
		sess, err := mine.CreateSession(ctx, "notes", "t")
		require.NoError(t, err)

		u, a := exchange("q", "a")
		_, err = mine.AppendExchange(ctx, sess.ID, a, u)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		loaded, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, loaded.Messages)
	})

	t.Run("ListOrderedByRecencyPerFeature", func(t *testing.T) {
		mine, _ := newPair(t)
		older, err := mine.CreateSession(ctx, "summarizer", "older")
		require.NoError(t, err)
		newer, err := mine.CreateSession(ctx, "summarizer", "newer")
		require.NoError(t, err)
		_, err = mine.CreateSession(ctx, "notes", "other feature")
		require.NoError(t, err)

		list, err := mine.ListSessions(ctx, "summarizer")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		u, a := exchange("q", "a")
		_, err = mine.AppendExchange(ctx, older.ID, u, a)
		require.NoError(t, err)

		list, err = mine.ListSessions(ctx, "summarizer")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
		assert.Empty(t, list[0].Messages)
		for i := 1; i < len(list); i++ {
			assert.False(t, list[i].UpdatedAt.After(list[i-1].UpdatedAt))
		}
	})

	t.Run("ListEmptyIsNotError", func(t *testing.T) {
		mine, _ := newPair(t)
		list, err := mine.ListSessions(ctx, "lesson-plan")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("DeleteCascadesAndIsIdempotent", func(t *testing.T) {
		mine, _ := newPair(t)
		u, a := exchange("q", "a")
		sess, err := mine.OpenSession(ctx, "answer-key", "q", u, a)
		require.NoError(t, err)

		require.NoError(t, mine.DeleteSession(ctx, sess.ID))
		_, err = mine.LoadSession(ctx, sess.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		list, err := mine.ListSessions(ctx, "answer-key")
		require.NoError(t, err)
		assert.Empty(t, list)

		assert.NoError(t, mine.DeleteSession(ctx, sess.ID))
		assert.NoError(t, mine.DeleteSession(ctx, "never-existed"))
	})

	t.Run("LoadIsIdempotent", func(t *testing.T) {
		mine, _ := newPair(t)
		u, a := exchange("What is PCR?", "A DNA amplification method.", "Biotechnology Principles (ch11.pdf)", "Applications (ch12.pdf)")
		sess, err := mine.OpenSession(ctx, "doubt-solver", "What is PCR?", u, a)
		require.NoError(t, err)
		u, a = exchange("And ELISA?", "An antigen test.")
		_, err = mine.AppendExchange(ctx, sess.ID, u, a)
		require.NoError(t, err)

		first, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)
		second, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		require.Len(t, second.Messages, 4)
		assert.Equal(t, []string{"Biotechnology Principles (ch11.pdf)", "Applications (ch12.pdf)"}, second.Messages[1].Sources)
		assert.Equal(t, "And ELISA?", second.Messages[2].Content)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		mine, _ := newPair(t)
		_, err := mine.LoadSession(ctx, "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		u, a := exchange("q", "a")
		_, err = mine.AppendExchange(ctx, "missing", u, a)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("ForeignSessionIsForbidden", func(t *testing.T) {
		mine, theirs := newPair(t)
		sess, err := mine.CreateSession(ctx, "notes", "private")
		require.NoError(t, err)

		_, err = theirs.LoadSession(ctx, sess.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		u, a := exchange("q", "a")
		_, err = theirs.AppendExchange(ctx, sess.ID, u, a)
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		assert.ErrorIs(t, theirs.DeleteSession(ctx, sess.ID), apperr.ErrForbidden)

		list, err := theirs.ListSessions(ctx, "notes")
		require.NoError(t, err)
		assert.Empty(t, list)

		loaded, err := mine.LoadSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, loaded.Messages)
	})
}

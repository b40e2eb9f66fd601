package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItem() *Item {
	now := time.Now().UTC()
	return &Item{
		UserId:         1,
		URL:            "https://example.com/article",
		ClientStatus:   ClientStatusAdding,
		ClientStatusAt: now,
		ServerStatus:   ServerStatusSaved,
		ServerStatusAt: now,
	}
}

func TestValidateItem(t *testing.T) {
	require.NoError(t, ValidateItem(validItem()))

	t.Run("nil item", func(t *testing.T) {
		assert.ErrorIs(t, ValidateItem(nil), ErrInvalidItem)
	})

	t.Run("empty url", func(t *testing.T) {
		item := validItem()
		item.URL = ""
		assert.ErrorIs(t, ValidateItem(item), ErrEmptyURL)
	})

	t.Run("missing owner", func(t *testing.T) {
		item := validItem()
		item.UserId = 0
		assert.ErrorIs(t, ValidateItem(item), ErrMissingOwner)
	})

	t.Run("invalid client status", func(t *testing.T) {
		item := validItem()
		item.ClientStatus = ClientStatus(99)
		assert.ErrorIs(t, ValidateItem(item), ErrInvalidClientStatus)
	})

	t.Run("invalid server status", func(t *testing.T) {
		item := validItem()
		item.ServerStatus = ServerStatus(0)
		assert.ErrorIs(t, ValidateItem(item), ErrInvalidServerStatus)
	})

	t.Run("expiry score out of range", func(t *testing.T) {
		item := validItem()
		item.ExpiryScore = 1.5
		assert.ErrorIs(t, ValidateItem(item), ErrExpiryScoreRange)

		item.ExpiryScore = -0.1
		assert.ErrorIs(t, ValidateItem(item), ErrExpiryScoreRange)
	})
}

func TestValidateChunk(t *testing.T) {
	chunk := &Chunk{ItemId: 1, Position: 0, Text: "some text", TokenCount: 2}
	require.NoError(t, ValidateChunk(chunk))

	assert.ErrorIs(t, ValidateChunk(nil), ErrInvalidChunk)

	assert.ErrorIs(t, ValidateChunk(&Chunk{Position: 0, Text: "x"}), ErrMissingOwner)
	assert.ErrorIs(t, ValidateChunk(&Chunk{ItemId: 1, Position: -1, Text: "x"}), ErrNegativePosition)
	assert.ErrorIs(t, ValidateChunk(&Chunk{ItemId: 1, Position: 0}), ErrEmptyChunkText)
}

func TestValidateUser(t *testing.T) {
	require.NoError(t, ValidateUser(&User{Username: "demo"}))
	assert.ErrorIs(t, ValidateUser(nil), ErrInvalidUser)
	assert.ErrorIs(t, ValidateUser(&User{}), ErrEmptyUsername)
}

func TestIDFromContentDeterministic(t *testing.T) {
	a := IDFromContent("https://example.com/a")
	b := IDFromContent("https://example.com/a")
	c := IDFromContent("https://example.com/b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotZero(t, a)
}

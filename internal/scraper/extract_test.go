package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/silknet/cordscope/api/schemas"
)

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("orders by timestamp descending", func(t *testing.T) {
		msgs := []schemas.Message{
			{ID: "1", TimestampUTC: base},
			{ID: "3", TimestampUTC: base.Add(2 * time.Minute)},
			{ID: "2", TimestampUTC: base.Add(time.Minute)},
		}
		sortNewestFirst(msgs)
		assert.Equal(t, "3", msgs[0].ID)
		assert.Equal(t, "2", msgs[1].ID)
		assert.Equal(t, "1", msgs[2].ID)
	})

	t.Run("equal timestamps break ties by id descending", func(t *testing.T) {
		msgs := []schemas.Message{
			{ID: "100", TimestampUTC: base},
			{ID: "999", TimestampUTC: base},
			{ID: "1000", TimestampUTC: base},
		}
		sortNewestFirst(msgs)
		assert.Equal(t, "1000", msgs[0].ID)
		assert.Equal(t, "999", msgs[1].ID)
		assert.Equal(t, "100", msgs[2].ID)
	})
}

func TestCompareSnowflake(t *testing.T) {
	assert.Equal(t, 1, compareSnowflake("1000", "999"), "longer id is larger")
	assert.Equal(t, -1, compareSnowflake("998", "999"))
	assert.Equal(t, 0, compareSnowflake("999", "999"))
}

func TestClassifyAttachment(t *testing.T) {
	cases := map[string]schemas.AttachmentKind{
		"https://cdn.discordapp.com/attachments/1/2/photo.png":             schemas.AttachmentImage,
		"https://cdn.discordapp.com/attachments/1/2/photo.JPG?width=400":   schemas.AttachmentImage,
		"https://cdn.discordapp.com/attachments/1/2/clip.mp4":              schemas.AttachmentVideo,
		"https://cdn.discordapp.com/attachments/1/2/notes.pdf":             schemas.AttachmentFile,
		"https://cdn.discordapp.com/attachments/1/2/archive.tar.gz?ex=abc": schemas.AttachmentFile,
	}
	for url, want := range cases {
		assert.Equal(t, want, classifyAttachment(url), url)
	}
}

func TestToMessage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fills all fields", func(t *testing.T) {
		msg := toMessage(rawMessage{
			ID:          "300",
			Author:      "alice",
			AuthorID:    "42",
			Content:     "hi",
			Timestamp:   "2025-06-01T10:30:00.000Z",
			Edited:      true,
			Attachments: []string{"https://cdn.discordapp.com/attachments/1/2/a.png"},
		}, "200", now)

		assert.Equal(t, "300", msg.ID)
		assert.Equal(t, "200", msg.ChannelID)
		assert.Equal(t, "42", msg.AuthorID)
		assert.True(t, msg.IsEdited)
		assert.Equal(t, time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), msg.TimestampUTC)
		assert.Len(t, msg.Attachments, 1)
		assert.Equal(t, schemas.AttachmentImage, msg.Attachments[0].Kind)
	})

	t.Run("unparseable timestamp falls back to now", func(t *testing.T) {
		msg := toMessage(rawMessage{ID: "300", Timestamp: "yesterday-ish"}, "200", now)
		assert.Equal(t, now, msg.TimestampUTC)
	})

	t.Run("missing author id becomes unknown", func(t *testing.T) {
		msg := toMessage(rawMessage{ID: "300"}, "200", now)
		assert.Equal(t, "unknown", msg.AuthorID)
	})
}

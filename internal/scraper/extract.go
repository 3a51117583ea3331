package scraper

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/silknet/cordscope/api/schemas"
	"github.com/silknet/cordscope/internal/browser"
)

// The extraction scripts run inside the live page and hand structured JSON
// back to Go. They are the only place that walks the rendered DOM; the
// selectors they receive come from the UIMap.

const extractGuildsJS = `
(() => {
    const guilds = [];
    const items = document.querySelectorAll('[data-list-id="guildsnav"] [role="treeitem"]');
    items.forEach(item => {
        const listItemId = item.getAttribute('data-list-item-id');
        if (!listItemId || !listItemId.startsWith('guildsnav___') || listItemId === 'guildsnav___home') {
            return;
        }
        const guildId = listItemId.replace('guildsnav___', '');
        if (!/^[0-9]+$/.test(guildId)) {
            return;
        }
        let name = (item.textContent || '').trim();
        name = name.replace(/^\d+\s+mentions?,\s*/, '').replace(/\s+/g, ' ').trim();
        if (name && !guilds.some(g => g.id === guildId)) {
            guilds.push({ id: guildId, name: name });
        }
    });
    return guilds;
})()
`

// extractChannelsJS needs the server id interpolated so the href pattern
// only matches channels of that server.
const extractChannelsJSTmpl = `
(() => {
    const channels = [];
    const seen = new Set();
    const links = document.querySelectorAll('a[href*="/channels/"]');
    links.forEach(link => {
        const match = link.href.match(/\/channels\/%s\/([0-9]+)/);
        if (!match) {
            return;
        }
        const channelId = match[1];
        if (seen.has(channelId)) {
            return;
        }
        seen.add(channelId);
        let name = (link.textContent || '').trim();
        name = name.replace(/^[^a-zA-Z0-9#\-_]+/, '').replace(/\s+/g, ' ').trim();
        channels.push({ id: channelId, name: name || ('channel-' + channelId) });
    });
    return channels;
})()
`

const expandHiddenChannelsJS = `
(() => {
    Array.from(document.querySelectorAll('*'))
        .filter(el => el.scrollHeight > el.clientHeight + 5)
        .forEach(el => el.scrollTop = el.scrollHeight);
    return true;
})()
`

const extractMessagesJS = `
(() => {
    const messages = [];
    const elements = document.querySelectorAll('[data-list-id="chat-messages"] [id^="chat-messages-"]');
    elements.forEach(el => {
        const id = el.id.replace('chat-messages-', '');

        const contentEl = el.querySelector('[class*="messageContent"], [class*="markup"]');
        const content = contentEl ? (contentEl.textContent || '').trim() : '';

        const usernameEl = el.querySelector('[class*="username"]');
        const author = usernameEl ? (usernameEl.textContent || '').trim() : '';

        let authorId = '';
        const avatar = el.querySelector('img[src*="/avatars/"]');
        if (avatar) {
            const m = avatar.src.match(/\/avatars\/([0-9]+)\//);
            if (m) authorId = m[1];
        }

        const timeEl = el.querySelector('time');
        const timestamp = timeEl ? (timeEl.getAttribute('datetime') || '') : '';

        const edited = el.querySelector('[class*="edited"]') !== null;

        const attachments = [];
        el.querySelectorAll('a[href*="cdn.discordapp.com"]').forEach(a => {
            if (a.href) attachments.push(a.href);
        });

        if (content || attachments.length > 0) {
            messages.push({
                id: id,
                author: author,
                author_id: authorId,
                content: content,
                timestamp: timestamp,
                edited: edited,
                attachments: attachments
            });
        }
    });
    return messages;
})()
`

const scrollChatToBottomJS = `
(() => {
    const chat = document.querySelector('[data-list-id="chat-messages"]');
    if (chat) chat.scrollTo(0, chat.scrollHeight);
    window.scrollTo(0, document.body.scrollHeight);
    return true;
})()
`

// rawGuild, rawChannel, and rawMessage mirror the JSON shapes the scripts
// produce.
type rawGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawMessage struct {
	ID          string   `json:"id"`
	Author      string   `json:"author"`
	AuthorID    string   `json:"author_id"`
	Content     string   `json:"content"`
	Timestamp   string   `json:"timestamp"`
	Edited      bool     `json:"edited"`
	Attachments []string `json:"attachments"`
}

func channelExtractionJS(serverID string) string {
	return fmt.Sprintf(extractChannelsJSTmpl, serverID)
}

// toMessage converts a raw DOM record into the public Message shape.
// Unparseable timestamps fall back to now so ordering stays total.
func toMessage(raw rawMessage, channelID string, now time.Time) schemas.Message {
	ts := now.UTC()
	if raw.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}

	var attachments []schemas.Attachment
	for _, url := range raw.Attachments {
		attachments = append(attachments, schemas.Attachment{URL: url, Kind: classifyAttachment(url)})
	}

	authorID := raw.AuthorID
	if authorID == "" {
		authorID = "unknown"
	}

	return schemas.Message{
		ID:           raw.ID,
		ChannelID:    channelID,
		AuthorName:   raw.Author,
		AuthorID:     authorID,
		TimestampUTC: ts,
		Content:      raw.Content,
		Attachments:  attachments,
		IsEdited:     raw.Edited,
	}
}

func classifyAttachment(url string) schemas.AttachmentKind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.SplitN(url, "?", 2)[0]), "."))
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp", "avif":
		return schemas.AttachmentImage
	case "mp4", "webm", "mov", "mkv":
		return schemas.AttachmentVideo
	default:
		return schemas.AttachmentFile
	}
}

// ChatMessages extracts the currently rendered channel view in DOM order
// (oldest at the top, matching the timeline). Shared with the search
// engine's context resolution, which works on the same channel view after a
// jump.
func ChatMessages(ctx context.Context, page browser.Page, channelID string) ([]schemas.Message, error) {
	var raw []rawMessage
	if err := page.Evaluate(ctx, extractMessagesJS, &raw); err != nil {
		return nil, err
	}
	now := time.Now()
	messages := make([]schemas.Message, 0, len(raw))
	for _, r := range raw {
		messages = append(messages, toMessage(r, channelID, now))
	}
	return messages, nil
}

// sortNewestFirst orders messages strictly newest-first by timestamp,
// breaking ties by message id descending (snowflake ids grow over time).
func sortNewestFirst(messages []schemas.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].TimestampUTC.Equal(messages[j].TimestampUTC) {
			return messages[i].TimestampUTC.After(messages[j].TimestampUTC)
		}
		return compareSnowflake(messages[i].ID, messages[j].ID) > 0
	})
}

// compareSnowflake compares two numeric id strings without overflowing:
// longer means larger, equal length falls back to lexicographic.
func compareSnowflake(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

package search

import (
	"fmt"
	"time"

	"github.com/silknet/cordscope/api/schemas"
)

// Scripts against the search results pane. Result cards carry the message
// id in a chat-messages- child id and the channel id in their jump link, so
// both are harvested in one pass.

const extractSearchResultsJS = `
(() => {
    const results = [];
    const cards = document.querySelectorAll('div[class*="searchResult"]');
    cards.forEach(card => {
        let id = '';
        const idEl = card.querySelector('[id^="chat-messages-"]');
        if (idEl) {
            id = idEl.id.replace('chat-messages-', '');
        }

        let channelId = '';
        const jump = card.querySelector('a[href*="/channels/"]');
        if (jump) {
            const m = jump.href.match(/\/channels\/(?:[0-9]+|@me)\/([0-9]+)\/([0-9]+)/);
            if (m) {
                channelId = m[1];
                if (!id) id = m[2];
            }
        }

        const contentEl = card.querySelector('[class*="messageContent"], [class*="markup"]');
        const content = contentEl ? (contentEl.textContent || '').trim() : '';

        const usernameEl = card.querySelector('[class*="username"]');
        const author = usernameEl ? (usernameEl.textContent || '').trim() : '';

        let authorId = '';
        const avatar = card.querySelector('img[src*="/avatars/"]');
        if (avatar) {
            const m = avatar.src.match(/\/avatars\/([0-9]+)\//);
            if (m) authorId = m[1];
        }

        const timeEl = card.querySelector('time');
        const timestamp = timeEl ? (timeEl.getAttribute('datetime') || '') : '';

        const edited = card.querySelector('[class*="edited"]') !== null;

        if (content || id) {
            results.push({
                id: id,
                channel_id: channelId,
                author: author,
                author_id: authorId,
                content: content,
                timestamp: timestamp,
                edited: edited
            });
        }
    });
    return results;
})()
`

const directPageButtonJSTmpl = `
(() => {
    const target = '%d';
    const buttons = Array.from(document.querySelectorAll('button'));
    const btn = buttons.find(b => (b.textContent || '').trim() === target);
    if (btn) {
        btn.click();
        return { clicked: true };
    }
    return { clicked: false };
})()
`

const ellipsisPageInputJSTmpl = `
(() => {
    const ellipsis = Array.from(document.querySelectorAll('button, span'))
        .find(el => (el.textContent || '').trim() === '...');
    if (!ellipsis) {
        return { clicked: false };
    }
    ellipsis.click();
    const input = document.querySelector('input[type="number"], input[placeholder*="age"]');
    if (!input) {
        return { clicked: false };
    }
    const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value').set;
    setter.call(input, '%d');
    input.dispatchEvent(new Event('input', { bubbles: true }));
    input.dispatchEvent(new KeyboardEvent('keydown', { key: 'Enter', bubbles: true }));
    return { clicked: true };
})()
`

const clickNextPageJS = `
(() => {
    const next = Array.from(document.querySelectorAll('button'))
        .find(b => {
            const label = (b.getAttribute('aria-label') || b.textContent || '').trim();
            return /^next/i.test(label) && !b.disabled;
        });
    if (next) {
        next.click();
        return { clicked: true };
    }
    return { clicked: false };
})()
`

const clickSearchResultJSTmpl = `
(() => {
    const cards = document.querySelectorAll('div[class*="searchResult"]');
    if (%d >= cards.length) {
        return { clicked: false };
    }
    const card = cards[%d];
    const jump = card.querySelector('a[href*="/channels/"]');
    if (jump) {
        jump.click();
    } else {
        card.click();
    }
    return { clicked: true };
})()
`

func directPageButtonJS(pageNum int) string {
	return fmt.Sprintf(directPageButtonJSTmpl, pageNum)
}

func ellipsisPageInputJS(pageNum int) string {
	return fmt.Sprintf(ellipsisPageInputJSTmpl, pageNum)
}

func clickSearchResultJS(index int) string {
	return fmt.Sprintf(clickSearchResultJSTmpl, index, index)
}

type pageNavOutcome struct {
	Clicked bool `json:"clicked"`
}

type rawResult struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    string `json:"author"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Edited    bool   `json:"edited"`
}

// toMessage converts a result card into the public Message shape. Result
// cards render no attachment links, so those stay empty.
func (r rawResult) toMessage(now time.Time) schemas.Message {
	ts := now.UTC()
	if r.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}
	authorID := r.AuthorID
	if authorID == "" {
		authorID = "unknown"
	}
	return schemas.Message{
		ID:           r.ID,
		ChannelID:    r.ChannelID,
		AuthorName:   r.Author,
		AuthorID:     authorID,
		TimestampUTC: ts,
		Content:      r.Content,
		IsEdited:     r.Edited,
	}
}

// Package schemas defines the shared data records exchanged between the
// scraping core and its callers. Everything here is a plain value: the core
// produces snapshots, never live handles.
package schemas

import "time"

// Server is a sidebar snapshot of a guild. Re-derived on every listing call.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelType mirrors the platform's channel kinds as far as the rendered
// sidebar lets us tell them apart.
type ChannelType string

const (
	ChannelTypeText    ChannelType = "text"
	ChannelTypeUnknown ChannelType = "unknown"
)

// Channel is a sidebar snapshot of a single channel within a server.
type Channel struct {
	ID       string      `json:"id"`
	ServerID string      `json:"server_id"`
	Name     string      `json:"name"`
	Type     ChannelType `json:"type"`
}

// AttachmentKind classifies an attachment by its URL.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a CDN link harvested from a rendered message.
type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
}

// Message is an immutable record scraped from the channel view.
type Message struct {
	ID           string       `json:"id"`
	ChannelID    string       `json:"channel_id"`
	AuthorName   string       `json:"author_name"`
	AuthorID     string       `json:"author_id"`
	TimestampUTC time.Time    `json:"timestamp_utc"`
	Content      string       `json:"content"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	IsEdited     bool         `json:"is_edited"`
}

// ContentType enumerates the platform's has: search filters.
type ContentType string

const (
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentLink  ContentType = "link"
	ContentFile  ContentType = "file"
	ContentEmbed ContentType = "embed"
)

// SearchFilter is a pure value describing one search. Zero values mean
// "no constraint". PageOffset is 0-based.
type SearchFilter struct {
	Query        string        `json:"query,omitempty"`
	ChannelIDs   []string      `json:"channel_ids,omitempty"`
	AuthorIDs    []string      `json:"author_ids,omitempty"`
	Mentions     []string      `json:"mentions,omitempty"`
	DateFrom     time.Time     `json:"date_from,omitempty"`
	DateTo       time.Time     `json:"date_to,omitempty"`
	During       time.Time     `json:"during,omitempty"`
	ContentTypes []ContentType `json:"content_types,omitempty"`
	Pinned       bool          `json:"pinned,omitempty"`
	PageOffset   int           `json:"page_offset,omitempty"`
}

// SearchResult pairs a scraped message with its rank on the results page.
// MatchRank is the absolute 0-based position across pages.
type SearchResult struct {
	Message   Message `json:"message"`
	MatchRank int     `json:"match_rank"`
}

// ContextWindow is the conversation surrounding an anchor message.
// Before and After are each ordered oldest to newest.
type ContextWindow struct {
	Anchor Message   `json:"anchor"`
	Before []Message `json:"before"`
	After  []Message `json:"after"`
}

// Cookie is the persisted form of one browser cookie. The on-disk session
// blob is a JSON array of these; SessionManager is the only reader/writer.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

// SendReceipt reports the outcome of a (possibly chunked) send.
type SendReceipt struct {
	ChunkIDs []string `json:"chunk_ids"`
	Chunks   int      `json:"chunks"`
}

package sender

import "strings"

// Boundary preference for splitting long content: paragraph break, then
// sentence end, then word break, then a hard cut. Concatenating the chunks
// in order always reproduces the input exactly, so every break point keeps
// its separator inside one of the chunks.

var sentenceBreaks = []string{". ", "! ", "? ", "\n"}

// SplitChunks partitions content into orderly pieces no longer than limit
// bytes. Content at or under the limit comes back as a single chunk.
func SplitChunks(content string, limit int) []string {
	if limit <= 0 || len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	rest := content
	for len(rest) > limit {
		cut := findCut(rest, limit)
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// findCut picks the cut position in s, 0 < cut <= limit, preferring the
// latest natural boundary inside the window.
func findCut(s string, limit int) int {
	window := s[:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + len("\n\n")
	}

	best := -1
	for _, sep := range sentenceBreaks {
		if idx := strings.LastIndex(window, sep); idx > 0 && idx+len(sep) > best {
			best = idx + len(sep)
		}
	}
	if best > 0 {
		return best
	}

	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return idx + 1
	}

	// No boundary at all; avoid splitting a rune mid-sequence.
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

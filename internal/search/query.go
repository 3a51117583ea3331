package search

import (
	"sort"
	"strings"

	"github.com/silknet/cordscope/api/schemas"
)

const dateLayout = "2006-01-02"

// BuildQuery renders a SearchFilter into the platform's search grammar.
// Token order and set ordering are fixed so identical filters always
// produce identical query strings; context resolution depends on that
// determinism.
func BuildQuery(filter schemas.SearchFilter) string {
	var parts []string
	if filter.Query != "" {
		parts = append(parts, filter.Query)
	}
	for _, ch := range sortedCopy(filter.ChannelIDs) {
		parts = append(parts, "in: "+ch)
	}
	for _, author := range sortedCopy(filter.AuthorIDs) {
		parts = append(parts, "from: "+author)
	}
	for _, user := range sortedCopy(filter.Mentions) {
		parts = append(parts, "mentions: "+user)
	}
	for _, ct := range sortedContentTypes(filter.ContentTypes) {
		parts = append(parts, "has: "+string(ct))
	}
	if !filter.DateFrom.IsZero() {
		parts = append(parts, "after: "+filter.DateFrom.Format(dateLayout))
	}
	if !filter.DateTo.IsZero() {
		parts = append(parts, "before: "+filter.DateTo.Format(dateLayout))
	}
	if !filter.During.IsZero() {
		parts = append(parts, "during: "+filter.During.Format(dateLayout))
	}
	if filter.Pinned {
		parts = append(parts, "pinned: true")
	}
	return strings.Join(parts, " ")
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func sortedContentTypes(values []schemas.ContentType) []schemas.ContentType {
	out := append([]schemas.ContentType(nil), values...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

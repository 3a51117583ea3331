package search

import (
	"context"

	"github.com/silknet/cordscope/api/schemas"
)

// Pager walks a search's result pages lazily. Each Next call runs a fresh
// search at the next offset, so results reflect the live index, not a
// snapshot.
type Pager struct {
	engine   *Engine
	serverID string
	filter   schemas.SearchFilter
	page     int
	done     bool
}

// NewPager starts paging at the filter's PageOffset.
func (e *Engine) NewPager(serverID string, filter schemas.SearchFilter) *Pager {
	return &Pager{
		engine:   e,
		serverID: serverID,
		filter:   filter,
		page:     filter.PageOffset,
	}
}

// Next fetches the next page of results. It returns (nil, nil) once the
// results are exhausted; callers loop until then.
func (p *Pager) Next(ctx context.Context) ([]schemas.SearchResult, error) {
	if p.done {
		return nil, nil
	}

	filter := p.filter
	filter.PageOffset = p.page
	results, err := p.engine.Search(ctx, p.serverID, filter)
	if err != nil {
		return nil, err
	}
	p.page++
	if len(results) == 0 {
		p.done = true
		return nil, nil
	}
	// A short page is the last one.
	if len(results) < PageSize {
		p.done = true
	}
	return results, nil
}

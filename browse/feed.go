package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/robertmeta/news-cli/logging"
	"github.com/robertmeta/news-cli/model"
)

// MsgFetchFailed is shown when an article search fails.
const MsgFetchFailed = "Failed to fetch news articles. Please try again later."

var (
	// ErrStale is returned by Fetch when the query changed or a newer fetch
	// was issued before this one completed. Its response was discarded.
	ErrStale = errors.New("response superseded by a newer query")
	// ErrClosed is returned by Fetch once the feed is closed.
	ErrClosed = errors.New("feed closed")
)

// Searcher runs article searches.
type Searcher interface {
	SearchArticles(ctx context.Context, params url.Values) (*model.PageResult, error)
}

// View is a snapshot of a Feed.
type View struct {
	Query         model.ListQuery `json:"query"`
	Items         []model.Article `json:"items"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int64           `json:"totalElements"`
	Loading       bool            `json:"loading"`
	Err           error           `json:"-"`
}

// Feed holds the query and last applied result of an article list. Only the
// response to the most recently issued Fetch is applied.
type Feed struct {
	src Searcher
	log *slog.Logger

	mu            sync.Mutex
	query         model.ListQuery
	items         []model.Article
	totalPages    int
	totalElements int64
	loading       bool
	err           error
	gen           uint64
	closed        bool
}

// NewFeed creates a feed starting at q.
func NewFeed(src Searcher, q model.ListQuery, log *slog.Logger) *Feed {
	if log == nil {
		log = logging.Discard()
	}
	return &Feed{src: src, query: q, log: log.With("component", "feed")}
}

// Query returns the current query.
func (f *Feed) Query() model.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Snapshot returns the current view state.
func (f *Feed) Snapshot() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View{
		Query:         f.query,
		Items:         append([]model.Article(nil), f.items...),
		TotalPages:    f.totalPages,
		TotalElements: f.totalElements,
		Loading:       f.loading,
		Err:           f.err,
	}
}

// SetKeyword changes the keyword filter.
func (f *Feed) SetKeyword(keyword string) {
	_ = f.update(func(q *model.ListQuery) error {
		q.Keyword = keyword
		return nil
	})
}

// SetCategory changes the category filter. Zero clears it.
func (f *Feed) SetCategory(id int64) error {
	return f.update(func(q *model.ListQuery) error {
		if id < 0 {
			return fmt.Errorf("invalid category id: %d", id)
		}
		q.CategoryID = id
		return nil
	})
}

// SetSource changes the source filter. Zero clears it.
func (f *Feed) SetSource(id int64) error {
	return f.update(func(q *model.ListQuery) error {
		if id < 0 {
			return fmt.Errorf("invalid source id: %d", id)
		}
		q.SourceID = id
		return nil
	})
}

// SetDateRange changes the calendar date filters. Empty strings clear them.
func (f *Feed) SetDateRange(start, end string) error {
	return f.update(func(q *model.ListQuery) error {
		if err := model.ValidateDateRange(start, end); err != nil {
			return err
		}
		q.StartDate, q.EndDate = start, end
		return nil
	})
}

// SetSortField changes the sort field.
func (f *Feed) SetSortField(field string) error {
	return f.update(func(q *model.ListQuery) error {
		if err := model.ValidateSort(field, q.SortDirection); err != nil {
			return err
		}
		q.SortField = field
		return nil
	})
}

// SetSortDirection changes the sort direction.
func (f *Feed) SetSortDirection(dir string) error {
	return f.update(func(q *model.ListQuery) error {
		if err := model.ValidateSort(q.SortField, dir); err != nil {
			return err
		}
		q.SortDirection = dir
		return nil
	})
}

// SetPageSize changes the page size.
func (f *Feed) SetPageSize(size int) error {
	return f.update(func(q *model.ListQuery) error {
		if size < 1 || size > model.MaxPageSize {
			return fmt.Errorf("page size must be between 1 and %d", model.MaxPageSize)
		}
		q.PageSize = size
		return nil
	})
}

// update applies change and rewinds to the first page. A failed change
// leaves the query untouched.
func (f *Feed) update(change func(q *model.ListQuery) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.query
	if err := change(&q); err != nil {
		return err
	}
	q.PageIndex = 0
	f.query = q
	f.invalidate()
	return nil
}

// invalidate makes any in-flight response stale. Callers hold f.mu.
func (f *Feed) invalidate() {
	f.gen++
	f.loading = false
}

// SetPage moves the cursor to a zero-based page.
func (f *Feed) SetPage(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index < 0 {
		return fmt.Errorf("invalid page: %d", index)
	}
	if f.totalPages > 0 && index >= f.totalPages {
		return fmt.Errorf("page %d is past the last page (%d)", index+1, f.totalPages)
	}
	f.query.PageIndex = index
	f.invalidate()
	return nil
}

// Next advances the cursor. It reports false on the last known page.
func (f *Feed) Next() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.totalPages > 0 && f.query.PageIndex+1 >= f.totalPages {
		return false
	}
	f.query.PageIndex++
	f.invalidate()
	return true
}

// Prev moves the cursor back. It reports false on the first page.
func (f *Feed) Prev() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.query.PageIndex == 0 {
		return false
	}
	f.query.PageIndex--
	f.invalidate()
	return true
}

// Fetch issues the current query. The response is applied only if the query
// was not changed and no other Fetch started in the meantime, and the feed is
// still open. The page cursor then follows the page the server reports.
func (f *Feed) Fetch(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if err := f.query.Validate(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.gen++
	gen := f.gen
	params := Params(f.query)
	f.loading = true
	f.err = nil
	f.mu.Unlock()

	page, err := f.src.SearchArticles(ctx, params)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if gen != f.gen {
		f.log.Debug("discarding superseded response", "generation", gen, "current", f.gen)
		return ErrStale
	}

	f.loading = false
	if err != nil {
		f.log.Warn("article search failed", "error", err)
		f.err = model.NewNotice(model.KindRead, MsgFetchFailed, err)
		return f.err
	}

	f.items = page.Items
	f.totalPages = page.TotalPages
	f.totalElements = page.TotalElements
	f.query.PageIndex = page.PageIndex
	return nil
}

// Close stops the feed from applying responses.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.loading = false
}

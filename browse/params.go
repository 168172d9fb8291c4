// Package browse builds article searches and tracks the paged result the way
// a feed view displays it.
package browse

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/robertmeta/news-cli/model"
)

// Suffixes that widen calendar dates to whole days.
const (
	dayStart = "T00:00:00"
	dayEnd   = "T23:59:59"
)

// Params encodes q as article search parameters. Paging and sort are always
// sent; filters only when set.
func Params(q model.ListQuery) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.PageIndex))
	v.Set("size", strconv.Itoa(q.PageSize))
	v.Set("sortBy", q.SortField)
	v.Set("sortDir", q.SortDirection)

	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		v.Set("keyword", kw)
	}
	if q.CategoryID > 0 {
		v.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.SourceID > 0 {
		v.Set("sourceId", strconv.FormatInt(q.SourceID, 10))
	}
	if q.StartDate != "" {
		v.Set("startDate", q.StartDate+dayStart)
	}
	if q.EndDate != "" {
		v.Set("endDate", q.EndDate+dayEnd)
	}
	return v
}

package browse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/robertmeta/news-cli/model"
)

// durationPattern matches duration strings like "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseDuration parses a duration string like "7d", "2w", "3m", "1y".
//
// Supported units:
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	day := 24 * time.Hour
	var unit time.Duration
	switch matches[2] {
	case "d":
		unit = day
	case "w":
		unit = 7 * day
	case "m":
		unit = 30 * day
	default:
		unit = 365 * day
	}
	if int64(num) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("duration out of range: %s", s)
	}
	return time.Duration(num) * unit, nil
}

// SinceDate returns the calendar date that lies the given duration before now.
func SinceDate(since string, now time.Time) (string, error) {
	d, err := ParseDuration(since)
	if err != nil {
		return "", err
	}
	return now.Add(-d).Format(model.DateLayout), nil
}

// QueryFlags are the raw article search flags of the CLI. Category and
// source are already resolved to IDs.
type QueryFlags struct {
	Keyword    string
	CategoryID int64
	SourceID   int64
	From       string
	To         string
	Since      string
	Sort       string
	Dir        string
	Page       int
	Size       int
}

// BuildListQuery constructs a validated ListQuery from CLI flags. Pages are
// numbered from 1 on the command line.
func BuildListQuery(f QueryFlags, now time.Time) (model.ListQuery, error) {
	q := model.DefaultListQuery()
	q.Keyword = f.Keyword
	q.CategoryID = f.CategoryID
	q.SourceID = f.SourceID
	q.StartDate = f.From
	q.EndDate = f.To

	if f.Since != "" {
		if f.From != "" {
			return q, fmt.Errorf("--since and --from cannot be combined")
		}
		start, err := SinceDate(f.Since, now)
		if err != nil {
			return q, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		q.StartDate = start
	}
	if f.Sort != "" {
		q.SortField = f.Sort
	}
	if f.Dir != "" {
		q.SortDirection = f.Dir
	}
	if f.Size != 0 {
		q.PageSize = f.Size
	}
	if f.Page != 0 {
		if f.Page < 1 {
			return q, fmt.Errorf("invalid page: %d (pages start at 1)", f.Page)
		}
		q.PageIndex = f.Page - 1
	}

	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

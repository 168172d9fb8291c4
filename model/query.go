package model

import (
	"errors"
	"fmt"
	"time"
)

// Sort fields and directions understood by the article search.
const (
	SortPublishedAt = "publishedAt"
	SortTitle       = "title"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// Page size bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// DateLayout is the calendar date format used by date filters.
const DateLayout = "2006-01-02"

// ListQuery holds the filter, sort and pagination parameters of an article
// search. Zero IDs and empty strings mean "not set".
type ListQuery struct {
	Keyword       string `json:"keyword,omitempty"`
	CategoryID    int64  `json:"categoryId,omitempty"`
	SourceID      int64  `json:"sourceId,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	EndDate       string `json:"endDate,omitempty"`
	SortField     string `json:"sortBy"`
	SortDirection string `json:"sortDir"`
	PageIndex     int    `json:"page"`
	PageSize      int    `json:"size"`
}

// DefaultListQuery returns the query a fresh feed starts with.
func DefaultListQuery() ListQuery {
	return ListQuery{
		SortField:     SortPublishedAt,
		SortDirection: SortDesc,
		PageIndex:     0,
		PageSize:      DefaultPageSize,
	}
}

// Validate checks the query for values the service would reject.
func (q *ListQuery) Validate() error {
	if err := ValidateSort(q.SortField, q.SortDirection); err != nil {
		return err
	}
	if q.PageIndex < 0 {
		return errors.New("page index must not be negative")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	}
	if q.CategoryID < 0 || q.SourceID < 0 {
		return errors.New("category and source IDs must be positive")
	}
	return ValidateDateRange(q.StartDate, q.EndDate)
}

// ValidateSort checks a sort field and direction pair.
func ValidateSort(field, direction string) error {
	switch field {
	case SortPublishedAt, SortTitle:
	default:
		return fmt.Errorf("invalid sort field: %s (expected %s or %s)", field, SortPublishedAt, SortTitle)
	}
	switch direction {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("invalid sort direction: %s (expected %s or %s)", direction, SortAsc, SortDesc)
	}
	return nil
}

// ValidateDateRange checks optional calendar dates and their order.
func ValidateDateRange(start, end string) error {
	var from, to time.Time
	var err error

	if start != "" {
		if from, err = time.Parse(DateLayout, start); err != nil {
			return fmt.Errorf("invalid start date: %s (expected YYYY-MM-DD)", start)
		}
	}
	if end != "" {
		if to, err = time.Parse(DateLayout, end); err != nil {
			return fmt.Errorf("invalid end date: %s (expected YYYY-MM-DD)", end)
		}
	}
	if start != "" && end != "" && from.After(to) {
		return errors.New("start date is after end date")
	}
	return nil
}

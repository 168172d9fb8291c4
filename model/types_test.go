package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQuery_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(q *ListQuery)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(q *ListQuery) {},
		},
		{
			name: "all filters set",
			mutate: func(q *ListQuery) {
				q.Keyword = "election"
				q.CategoryID = 2
				q.SourceID = 7
				q.StartDate = "2024-01-01"
				q.EndDate = "2024-01-31"
				q.SortField = SortTitle
				q.SortDirection = SortAsc
			},
		},
		{
			name:    "unknown sort field",
			mutate:  func(q *ListQuery) { q.SortField = "author" },
			wantErr: true,
		},
		{
			name:    "unknown direction",
			mutate:  func(q *ListQuery) { q.SortDirection = "up" },
			wantErr: true,
		},
		{
			name:    "negative page",
			mutate:  func(q *ListQuery) { q.PageIndex = -1 },
			wantErr: true,
		},
		{
			name:    "zero page size",
			mutate:  func(q *ListQuery) { q.PageSize = 0 },
			wantErr: true,
		},
		{
			name:    "page size too large",
			mutate:  func(q *ListQuery) { q.PageSize = MaxPageSize + 1 },
			wantErr: true,
		},
		{
			name:    "malformed date",
			mutate:  func(q *ListQuery) { q.StartDate = "01/02/2024" },
			wantErr: true,
		},
		{
			name: "start after end",
			mutate: func(q *ListQuery) {
				q.StartDate = "2024-02-01"
				q.EndDate = "2024-01-01"
			},
			wantErr: true,
		},
		{
			name: "same day range",
			mutate: func(q *ListQuery) {
				q.StartDate = "2024-01-01"
				q.EndDate = "2024-01-01"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultListQuery()
			tt.mutate(&q)
			err := q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultListQuery(t *testing.T) {
	q := DefaultListQuery()
	assert.Equal(t, "publishedAt", q.SortField)
	assert.Equal(t, "desc", q.SortDirection)
	assert.Equal(t, 0, q.PageIndex)
	assert.Equal(t, 10, q.PageSize)
}

func TestPageResult_PageIndexAliases(t *testing.T) {
	var withPageNo PageResult
	require.NoError(t, json.Unmarshal([]byte(`{"content":[{"id":1,"title":"A"}],"pageNo":2,"totalPages":5,"totalElements":42}`), &withPageNo))
	assert.Equal(t, 2, withPageNo.PageIndex)
	assert.Equal(t, 5, withPageNo.TotalPages)
	assert.Equal(t, int64(42), withPageNo.TotalElements)
	require.Len(t, withPageNo.Items, 1)
	assert.Equal(t, "A", withPageNo.Items[0].Title)

	var withPageNumber PageResult
	require.NoError(t, json.Unmarshal([]byte(`{"content":null,"pageNumber":3,"totalPages":4,"totalElements":31,"last":true}`), &withPageNumber))
	assert.Equal(t, 3, withPageNumber.PageIndex)
	assert.True(t, withPageNumber.Last)
	assert.NotNil(t, withPageNumber.Items, "nil content should decode as an empty page")
}

func TestTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"local date-time", `"2024-03-05T10:15:30"`, time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"fractional seconds", `"2024-03-05T10:15:30.123"`, time.Date(2024, 3, 5, 10, 15, 30, 123000000, time.UTC)},
		{"rfc3339", `"2024-03-05T10:15:30Z"`, time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)},
		{"date only", `"2024-03-05"`, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	var empty Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.True(t, empty.IsZero())
	assert.Equal(t, "N/A", empty.String())

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}

func TestArticle_LinkAndBody(t *testing.T) {
	a := Article{URL: "https://example.com/a", Description: "desc"}
	assert.Equal(t, "https://example.com/a", a.Link())
	assert.Equal(t, "desc", a.Body())

	a.ArticleURL = "https://example.com/b"
	a.Content = "full text"
	assert.Equal(t, "https://example.com/b", a.Link())
	assert.Equal(t, "full text", a.Body())
}

func TestSessionState_Authenticated(t *testing.T) {
	assert.False(t, SessionState{}.Authenticated())
	assert.False(t, SessionState{Credential: "T1"}.Authenticated())
	assert.True(t, SessionState{Identity: &Identity{Username: "alice"}, Credential: "T1"}.Authenticated())
}

func TestNotice(t *testing.T) {
	cause := errors.New("connection refused")
	n := NewNotice(KindRead, "Failed to load comments.", cause)

	var err error = n
	assert.Equal(t, "Failed to load comments.", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindRead, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(cause))

	login := LoginRequired("You must be logged in to save articles.")
	assert.ErrorIs(t, login, ErrNotAuthenticated)
	assert.Equal(t, KindAuthorization, login.Kind)
}

func TestPreferences_Keywords(t *testing.T) {
	p := Preferences{PreferredKeywords: " go, rust ,, climate "}
	assert.Equal(t, []string{"go", "rust", "climate"}, p.Keywords())
	assert.Empty(t, (&Preferences{}).Keywords())
}

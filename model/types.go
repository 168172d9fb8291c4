// Package model defines the core data structures for news-cli.
package model

import (
	"encoding/json"
	"strings"
)

// Article is a news article as served by the content service.
type Article struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	SourceName   string    `json:"sourceName,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	Author       string    `json:"author,omitempty"`
	PublishedAt  Timestamp `json:"publishedAt"`
	Content      string    `json:"content,omitempty"`
	ArticleURL   string    `json:"articleUrl,omitempty"`
	URL          string    `json:"url,omitempty"`
	SavedAt      Timestamp `json:"savedAt"`
}

// Link returns the address of the original article.
func (a *Article) Link() string {
	if a.ArticleURL != "" {
		return a.ArticleURL
	}
	return a.URL
}

// Body returns the best available text for the article.
func (a *Article) Body() string {
	if strings.TrimSpace(a.Content) != "" {
		return a.Content
	}
	return a.Description
}

// Category is a topical grouping of articles.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Source is a publisher the service aggregates from.
type Source struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Comment is a user comment attached to an article.
type Comment struct {
	ID            int64     `json:"id"`
	Content       string    `json:"content"`
	CreatedAt     Timestamp `json:"createdAt"`
	Username      string    `json:"username"`
	NewsArticleID int64     `json:"newsArticleId,omitempty"`
}

// MaxCommentLength is the longest comment the service accepts.
const MaxCommentLength = 1000

// Identity is the user-facing profile of the authenticated user.
type Identity struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SessionState is a snapshot of the current session.
type SessionState struct {
	Identity   *Identity `json:"identity,omitempty"`
	Credential string    `json:"-"`
	Loading    bool      `json:"loading"`
}

// Authenticated reports whether the snapshot holds a usable session.
func (s SessionState) Authenticated() bool {
	return s.Identity != nil && s.Credential != ""
}

// PageResult is one page of an article search.
type PageResult struct {
	Items         []Article `json:"content"`
	PageIndex     int       `json:"pageNo"`
	PageSize      int       `json:"pageSize,omitempty"`
	TotalPages    int       `json:"totalPages"`
	TotalElements int64     `json:"totalElements"`
	Last          bool      `json:"last,omitempty"`
}

// UnmarshalJSON accepts both "pageNo" and "pageNumber" for the page index.
func (p *PageResult) UnmarshalJSON(data []byte) error {
	type plain PageResult
	var aux struct {
		plain
		PageNo     *int `json:"pageNo"`
		PageNumber *int `json:"pageNumber"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = PageResult(aux.plain)
	switch {
	case aux.PageNo != nil:
		p.PageIndex = *aux.PageNo
	case aux.PageNumber != nil:
		p.PageIndex = *aux.PageNumber
	}
	if p.Items == nil {
		p.Items = []Article{}
	}
	return nil
}

// Preferences holds a user's preferred keywords, sources and categories.
type Preferences struct {
	UserID               int64   `json:"userId,omitempty"`
	Username             string  `json:"username,omitempty"`
	PreferredKeywords    string  `json:"preferredKeywords"`
	PreferredSourceIDs   []int64 `json:"preferredSourceIds"`
	PreferredCategoryIDs []int64 `json:"preferredCategoryIds"`
}

// Keywords splits the comma separated keyword list.
func (p *Preferences) Keywords() []string {
	var out []string
	for _, k := range strings.Split(p.PreferredKeywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/robertmeta/news-cli/model"
)

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
	}
	var resp AuthResponse
	if err := c.do(ctx, call{svc: authService, method: http.MethodPost, path: "/login", body: payload, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	payload := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	var resp AuthResponse
	if err := c.do(ctx, call{svc: authService, method: http.MethodPost, path: "/register", body: payload, out: &resp}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the identity behind the current credential.
func (c *Client) Me(ctx context.Context) (*model.Identity, error) {
	var id model.Identity
	if err := c.get(ctx, "/users/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// SearchArticles runs a paged article search with already-encoded params.
func (c *Client) SearchArticles(ctx context.Context, params url.Values) (*model.PageResult, error) {
	var page model.PageResult
	if err := c.get(ctx, "/articles", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Article returns one article.
func (c *Client) Article(ctx context.Context, id int64) (*model.Article, error) {
	var a model.Article
	if err := c.get(ctx, fmt.Sprintf("/articles/%d", id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Categories lists every category.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	if err := c.get(ctx, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sources lists every source.
func (c *Client) Sources(ctx context.Context) ([]model.Source, error) {
	var out []model.Source
	if err := c.get(ctx, "/sources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Comments lists the comments of an article.
func (c *Client) Comments(ctx context.Context, articleID int64) ([]model.Comment, error) {
	var out []model.Comment
	if err := c.get(ctx, fmt.Sprintf("/articles/%d/comments", articleID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment posts a comment as userID and returns the created comment.
func (c *Client) AddComment(ctx context.Context, articleID, userID int64, content string) (*model.Comment, error) {
	var out model.Comment
	err := c.do(ctx, call{
		svc:    contentService,
		method: http.MethodPost,
		path:   fmt.Sprintf("/articles/%d/comments", articleID),
		query:  userQuery(userID),
		body:   map[string]string{"content": content},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment owned by userID.
func (c *Client) DeleteComment(ctx context.Context, articleID, commentID, userID int64) error {
	return c.do(ctx, call{
		svc:    contentService,
		method: http.MethodDelete,
		path:   fmt.Sprintf("/articles/%d/comments/%d", articleID, commentID),
		query:  userQuery(userID),
	})
}

// SavedArticles lists the articles userID has saved.
func (c *Client) SavedArticles(ctx context.Context, userID int64) ([]model.Article, error) {
	var out []model.Article
	if err := c.get(ctx, fmt.Sprintf("/users/%d/saved-articles", userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveArticle bookmarks an article for userID.
func (c *Client) SaveArticle(ctx context.Context, userID, articleID int64) error {
	return c.do(ctx, call{
		svc:    contentService,
		method: http.MethodPost,
		path:   fmt.Sprintf("/users/%d/saved-articles/%d", userID, articleID),
	})
}

// UnsaveArticle removes a bookmark.
func (c *Client) UnsaveArticle(ctx context.Context, userID, articleID int64) error {
	return c.do(ctx, call{
		svc:    contentService,
		method: http.MethodDelete,
		path:   fmt.Sprintf("/users/%d/saved-articles/%d", userID, articleID),
	})
}

// Preferences returns the stored preferences of userID.
func (c *Client) Preferences(ctx context.Context, userID int64) (*model.Preferences, error) {
	var out model.Preferences
	if err := c.get(ctx, fmt.Sprintf("/users/%d/preferences", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePreferences creates or replaces the preferences of userID.
func (c *Client) UpdatePreferences(ctx context.Context, userID int64, prefs model.Preferences) (*model.Preferences, error) {
	var out model.Preferences
	err := c.do(ctx, call{
		svc:    contentService,
		method: http.MethodPut,
		path:   fmt.Sprintf("/users/%d/preferences", userID),
		body:   prefs,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, call{svc: contentService, method: http.MethodGet, path: path, query: query, out: out})
}

func userQuery(userID int64) url.Values {
	return url.Values{"userId": []string{strconv.FormatInt(userID, 10)}}
}

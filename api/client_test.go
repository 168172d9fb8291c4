package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/news-cli/apitest"
	"github.com/robertmeta/news-cli/model"
)

func newTestClient(t *testing.T) (*Client, *apitest.Server) {
	t.Helper()
	srv := apitest.New(t)
	c := New(Config{
		AuthURL:    srv.AuthURL(),
		ContentURL: srv.ContentURL(),
		Timeout:    5 * time.Second,
	}, NewPipeline())
	return c, srv
}

func TestLogin(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("alice", "alice@example.com", "secret1")
	ctx := context.Background()

	resp, err := c.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.NotEmpty(t, resp.Token)

	_, err = c.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	msg, ok := ServerMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "Bad credentials", msg)
}

func TestRegister_Conflicts(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("alice", "alice@example.com", "secret1")
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "other@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusCode(err))
	assert.Equal(t, "User already exists with username : 'alice'", MessageOr(err, ""))

	_, err = c.Register(ctx, "bob", "ALICE@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Email already registered", MessageOr(err, ""))

	resp, err := c.Register(ctx, "bob", "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bob", resp.Username)
}

func TestRegister_ValidationMessage(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Register(context.Background(), "bob", "not-an-email", "123")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, "Email should be valid; Password must be at least 6 characters", MessageOr(err, ""))
}

func TestAuthRequestsBypassPipeline(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser("alice", "alice@example.com", "secret1")
	c.Pipeline().Replace(BearerRule("stale-token"))

	_, err := c.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	reqs := srv.RequestsTo(apitest.RouteLogin)
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Authorization)
	assert.NotEmpty(t, reqs[0].RequestID)
}

func TestContentRequestsCarryCurrentRule(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	_, err := c.Categories(ctx)
	require.NoError(t, err)

	c.Pipeline().Replace(BearerRule("first"))
	_, err = c.Categories(ctx)
	require.NoError(t, err)

	c.Pipeline().Replace(BearerRule("second"))
	_, err = c.Categories(ctx)
	require.NoError(t, err)

	c.Pipeline().Clear()
	_, err = c.Categories(ctx)
	require.NoError(t, err)

	reqs := srv.RequestsTo(apitest.RouteCategories)
	require.Len(t, reqs, 4)
	assert.Equal(t, "", reqs[0].Authorization)
	assert.Equal(t, "Bearer first", reqs[1].Authorization)
	assert.Equal(t, "Bearer second", reqs[2].Authorization)
	assert.Equal(t, "", reqs[3].Authorization)
	assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
}

func TestMe(t *testing.T) {
	c, srv := newTestClient(t)
	id := srv.AddUser("alice", "alice@example.com", "secret1")
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	c.Pipeline().Replace(BearerRule(srv.Token("alice")))
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: id, Username: "alice", Email: "alice@example.com"}, *me)
}

func TestSearchArticles(t *testing.T) {
	c, srv := newTestClient(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"Alpha", "Bravo", "Charlie"} {
		srv.AddArticle(model.Article{
			Title:       title,
			PublishedAt: model.Timestamp{Time: base.Add(time.Duration(i) * time.Hour)},
		})
	}

	params := url.Values{
		"page":    {"0"},
		"size":    {"2"},
		"sortBy":  {model.SortTitle},
		"sortDir": {model.SortAsc},
	}
	page, err := c.SearchArticles(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Alpha", page.Items[0].Title)
	assert.Equal(t, "Bravo", page.Items[1].Title)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, int64(3), page.TotalElements)

	params.Set("page", "1")
	page, err = c.SearchArticles(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.PageIndex)
	assert.Equal(t, "Charlie", page.Items[0].Title)
}

func TestArticle_NotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Article(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Equal(t, "NewsArticle not found with id : '42'", MessageOr(err, "fallback"))
}

func TestSavedArticlesRoundTrip(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("alice", "alice@example.com", "secret1")
	a := srv.AddArticle(model.Article{Title: "Saved"})
	c.Pipeline().Replace(BearerRule(srv.Token("alice")))
	ctx := context.Background()

	require.NoError(t, c.SaveArticle(ctx, userID, a.ID))
	saved, err := c.SavedArticles(ctx, userID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, a.ID, saved[0].ID)
	assert.False(t, saved[0].SavedAt.IsZero())

	require.NoError(t, c.UnsaveArticle(ctx, userID, a.ID))
	saved, err = c.SavedArticles(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestCommentsRoundTrip(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("alice", "alice@example.com", "secret1")
	a := srv.AddArticle(model.Article{Title: "Discussed"})
	c.Pipeline().Replace(BearerRule(srv.Token("alice")))
	ctx := context.Background()

	created, err := c.AddComment(ctx, a.ID, userID, "first!")
	require.NoError(t, err)
	assert.Equal(t, "first!", created.Content)
	assert.Equal(t, "alice", created.Username)

	reqs := srv.RequestsTo(apitest.RouteAddComment)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "userId=")

	list, err := c.Comments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteComment(ctx, a.ID, created.ID, userID))
	list, err = c.Comments(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPreferences(t *testing.T) {
	c, srv := newTestClient(t)
	userID := srv.AddUser("alice", "alice@example.com", "secret1")
	c.Pipeline().Replace(BearerRule(srv.Token("alice")))
	ctx := context.Background()

	_, err := c.Preferences(ctx, userID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	updated, err := c.UpdatePreferences(ctx, userID, model.Preferences{
		PreferredKeywords:  "go, rust",
		PreferredSourceIDs: []int64{3},
	})
	require.NoError(t, err)
	assert.Equal(t, userID, updated.UserID)

	got, err := c.Preferences(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, got.Keywords())
	assert.Equal(t, []int64{3}, got.PreferredSourceIDs)
}

func TestInjectedFailure(t *testing.T) {
	c, srv := newTestClient(t)
	srv.FailRaw(apitest.RouteSources, http.StatusInternalServerError, "")

	_, err := c.Sources(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "fallback", MessageOr(err, "fallback"))

	srv.Recover(apitest.RouteSources)
	_, err = c.Sources(context.Background())
	assert.NoError(t, err)
}

func TestEmptyBodyOnRead(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(Config{AuthURL: ts.URL, ContentURL: ts.URL}, nil)
	_, err := c.Categories(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty body")
}

func TestUserAgentAndContentType(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("[]"))
	}))
	defer ts.Close()

	c := New(Config{ContentURL: ts.URL + "/", UserAgent: "news-cli/test"}, nil)
	_, err := c.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "news-cli/test", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test RSS Feed</title>
    <link>https://example.com</link>
    <description>Fixture</description>
    <item>
      <title>Older Entry</title>
      <link>https://example.com/older</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Newest Entry</title>
      <link>https://example.com/newest</link>
      <pubDate>Wed, 03 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Undated Entry</title>
      <link>https://example.com/undated</link>
    </item>
    <item>
      <title>Middle Entry</title>
      <link>https://example.com/middle</link>
      <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <id>urn:test</id>
  <updated>2024-01-02T10:00:00Z</updated>
  <entry>
    <title>First Atom Entry</title>
    <link href="https://example.com/atom-entry-1"/>
    <id>atom-entry-1</id>
    <updated>2024-01-02T10:00:00Z</updated>
  </entry>
</feed>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<link rel="stylesheet" href="/site.css">
<link rel="alternate" type="text/html" hreflang="fr" href="/fr/">
<link rel="alternate" type="application/rss+xml" title="RSS" href="/feeds/all.xml">
<link rel="alternate" type="application/atom+xml" href="/feeds/atom.xml">
</head><body>Home</body></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>No feeds here</title></head></html>`))
	})
	mux.HandleFunc("/feeds/all.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	})
	mux.HandleFunc("/feeds/atom.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomFixture))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestDiscover(t *testing.T) {
	ts := newSite(t)
	f := NewFetcher(ts.Client())
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "linked from home page", path: "/", want: ts.URL + "/feeds/all.xml"},
		{name: "page is a feed", path: "/feeds/atom.xml", want: ts.URL + "/feeds/atom.xml"},
		{name: "no feed", path: "/plain", wantErr: ErrNoFeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Discover(ctx, ts.URL+tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.Discover(ctx, ts.URL+"/gone")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoFeed))
}

func TestPreview(t *testing.T) {
	ts := newSite(t)
	f := NewFetcher(ts.Client())

	p, err := f.Preview(context.Background(), ts.URL, 3)
	require.NoError(t, err)
	assert.Equal(t, "Test RSS Feed", p.Title)
	assert.Equal(t, ts.URL+"/feeds/all.xml", p.FeedURL)
	require.Len(t, p.Headlines, 3)
	assert.Equal(t, "Newest Entry", p.Headlines[0].Title)
	assert.Equal(t, "Middle Entry", p.Headlines[1].Title)
	assert.Equal(t, "Older Entry", p.Headlines[2].Title)

	p, err = f.Preview(context.Background(), ts.URL, 0)
	require.NoError(t, err)
	require.Len(t, p.Headlines, 4)
	assert.Equal(t, "Undated Entry", p.Headlines[3].Title)
	assert.True(t, p.Headlines[3].Published.IsZero())

	undated, err := json.Marshal(p.Headlines[3])
	require.NoError(t, err)
	assert.NotContains(t, string(undated), "published")
	dated, err := json.Marshal(p.Headlines[0])
	require.NoError(t, err)
	assert.Contains(t, string(dated), `"published":"`)
}

func TestParse_Atom(t *testing.T) {
	p, err := NewFetcher(nil).Parse([]byte(atomFixture))
	require.NoError(t, err)
	assert.Equal(t, "Test Atom Feed", p.Title)
	require.Len(t, p.Headlines, 1)
	assert.Equal(t, "https://example.com/atom-entry-1", p.Headlines[0].Link)
	assert.False(t, p.Headlines[0].Published.IsZero())
}

func TestParse_Invalid(t *testing.T) {
	f := NewFetcher(nil)

	_, err := f.Parse([]byte("<invalid>xml</broken>"))
	assert.Error(t, err)

	_, err = f.Parse([]byte("   "))
	assert.Error(t, err)

	_, err = f.Parse([]byte("<?xml version='1.0'?><root><item>not a feed</item></root>"))
	assert.Error(t, err)
}

// Package feed finds and previews the RSS/Atom feeds published by news
// sources.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// maxBody caps how much of a page or feed is read.
const maxBody = 5 << 20

// ErrNoFeed is returned when a page neither is a feed nor links to one.
var ErrNoFeed = errors.New("no feed found")

// feedTypes are the <link type> values that announce a feed.
var feedTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/feed+json",
}

// Headline is one entry of a feed.
type Headline struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published,omitzero"`
}

// Preview is the head of a source's feed.
type Preview struct {
	FeedURL   string     `json:"feedUrl"`
	Title     string     `json:"title"`
	Headlines []Headline `json:"headlines"`
}

// Fetcher handles discovering and parsing RSS/Atom feeds.
type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

// NewFetcher creates a new Fetcher. A nil client gets a 15 second timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: "news-cli",
	}
}

// Discover returns the feed address for pageURL: the page itself when it is
// a feed, else the first feed it links to with <link rel="alternate">.
func (f *Fetcher) Discover(ctx context.Context, pageURL string) (string, error) {
	body, finalURL, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	if _, err := f.parser.Parse(bytes.NewReader(body)); err == nil {
		return finalURL, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse page %s: %w", pageURL, err)
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %s: %w", finalURL, err)
	}

	var found string
	doc.Find(`link[rel~="alternate"][href]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if !isFeedType(typ) {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})

	if found == "" {
		return "", fmt.Errorf("%w at %s", ErrNoFeed, pageURL)
	}
	return found, nil
}

// Preview discovers the feed of pageURL and returns its newest headlines.
// A limit of zero or less returns every headline.
func (f *Fetcher) Preview(ctx context.Context, pageURL string, limit int) (*Preview, error) {
	feedURL, err := f.Discover(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	body, _, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	p, err := f.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed from %s: %w", feedURL, err)
	}
	p.FeedURL = feedURL
	if limit > 0 && len(p.Headlines) > limit {
		p.Headlines = p.Headlines[:limit]
	}
	return p, nil
}

// Parse parses feed content, newest headline first. Undated headlines sort
// last.
func (f *Fetcher) Parse(content []byte) (*Preview, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("feed content is empty")
	}

	gf, err := f.parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	p := &Preview{Title: gf.Title, Headlines: []Headline{}}
	for _, item := range gf.Items {
		p.Headlines = append(p.Headlines, convertItem(item))
	}
	sort.SliceStable(p.Headlines, func(i, j int) bool {
		return p.Headlines[i].Published.After(p.Headlines[j].Published)
	})
	return p, nil
}

func convertItem(item *gofeed.Item) Headline {
	h := Headline{
		Title: strings.TrimSpace(item.Title),
		Link:  item.Link,
	}
	if h.Link == "" && len(item.Links) > 0 {
		h.Link = item.Links[0]
	}

	if item.PublishedParsed != nil {
		h.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		h.Published = *item.UpdatedParsed
	}
	return h
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("failed to fetch %s: %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return body, resp.Request.URL.String(), nil
}

func isFeedType(typ string) bool {
	for _, t := range feedTypes {
		if typ == t {
			return true
		}
	}
	return false
}

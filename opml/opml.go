// Package opml exports news sources as OPML and matches OPML subscription
// lists against them.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/robertmeta/news-cli/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or category in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLUrl  string    `xml:"htmlUrl,attr,omitempty"`
	Category string    `xml:"category,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Subscription is one feed listed in an OPML file.
type Subscription struct {
	Title    string `json:"title"`
	XMLURL   string `json:"xmlUrl"`
	HTMLURL  string `json:"htmlUrl,omitempty"`
	Category string `json:"category,omitempty"`
}

// Match pairs a subscription with the catalog source serving the same host.
// Source is nil when the service does not aggregate that publisher.
type Match struct {
	Subscription Subscription  `json:"subscription"`
	Source       *model.Source `json:"source"`
}

// Parse reads an OPML file and extracts its subscriptions.
func Parse(r io.Reader) ([]Subscription, error) {
	var doc OPML
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}
	return extract(doc.Body.Outlines, ""), nil
}

// extract walks outlines depth first. Nested outlines without a category
// inherit the text of their parent.
func extract(outlines []Outline, parentCategory string) []Subscription {
	var subs []Subscription

	for _, o := range outlines {
		if o.XMLUrl != "" {
			sub := Subscription{
				Title:    o.Title,
				XMLURL:   o.XMLUrl,
				HTMLURL:  o.HTMLUrl,
				Category: o.Category,
			}
			if sub.Category == "" {
				sub.Category = parentCategory
			}
			if sub.Title == "" {
				sub.Title = o.Text
			}
			subs = append(subs, sub)
		}

		if len(o.Outlines) > 0 {
			childCategory := o.Text
			if childCategory == "" {
				childCategory = parentCategory
			}
			subs = append(subs, extract(o.Outlines, childCategory)...)
		}
	}

	return subs
}

// Generate writes an OPML 2.0 document with one outline per source, sorted
// by name. feedURLs supplies xmlUrl for sources whose feed is known.
func Generate(w io.Writer, sources []model.Source, feedURLs map[int64]string) error {
	sorted := append([]model.Source(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "news-cli Sources",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{Outlines: []Outline{}},
	}

	for _, src := range sorted {
		o := Outline{
			Text:    src.Name,
			Title:   src.Name,
			HTMLUrl: src.BaseURL,
		}
		if feedURL := feedURLs[src.ID]; feedURL != "" {
			o.Type = "rss"
			o.XMLUrl = feedURL
		}
		doc.Body.Outlines = append(doc.Body.Outlines, o)
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}

// MatchSources pairs every subscription with the source whose base URL has
// the same host, ignoring a leading "www.".
func MatchSources(subs []Subscription, sources []model.Source) []Match {
	byHost := make(map[string]*model.Source, len(sources))
	for i := range sources {
		if h := host(sources[i].BaseURL); h != "" {
			if _, dup := byHost[h]; !dup {
				byHost[h] = &sources[i]
			}
		}
	}

	matches := make([]Match, 0, len(subs))
	for _, sub := range subs {
		m := Match{Subscription: sub}
		for _, raw := range []string{sub.HTMLURL, sub.XMLURL} {
			if src, ok := byHost[host(raw)]; ok && raw != "" {
				m.Source = src
				break
			}
		}
		matches = append(matches, m)
	}
	return matches
}

func host(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

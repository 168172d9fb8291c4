package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/news-cli/browse"
	"github.com/robertmeta/news-cli/feed"
	"github.com/robertmeta/news-cli/model"
	"github.com/robertmeta/news-cli/opml"
	"github.com/robertmeta/news-cli/store"
)

// maxDiscover bounds concurrent feed discovery during export.
const maxDiscover = 8

func (r *runner) catalogCommands() []*cli.Command {
	refresh := &cli.BoolFlag{
		Name:    "refresh",
		Aliases: []string{"r"},
		Usage:   "Reload from the service instead of the local cache",
	}

	return []*cli.Command{
		{
			Name:   "categories",
			Usage:  "List article categories",
			Flags:  []cli.Flag{refresh},
			Action: r.listCatalog(store.CatalogCategories),
		},
		{
			Name:   "sources",
			Usage:  "List news sources",
			Flags:  []cli.Flag{refresh},
			Action: r.listCatalog(store.CatalogSources),
			Subcommands: []*cli.Command{
				{
					Name:  "export",
					Usage: "Export sources to an OPML file",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:    "output",
							Aliases: []string{"o"},
							Usage:   "Output file (default: stdout)",
						},
						&cli.BoolFlag{
							Name:  "discover",
							Usage: "Look up each source's RSS/Atom feed for xmlUrl",
						},
					},
					Action: r.exportSources,
				},
				{
					Name:      "match",
					Usage:     "Match the subscriptions of an OPML file against the sources",
					ArgsUsage: "<opml-file>",
					Action:    r.matchSources,
				},
				{
					Name:      "peek",
					Usage:     "Show the latest headlines from a source's own feed",
					ArgsUsage: "<source>",
					Flags: []cli.Flag{
						&cli.IntFlag{
							Name:    "limit",
							Aliases: []string{"l"},
							Value:   10,
							Usage:   "Maximum number of headlines",
						},
					},
					Action: r.peekSource,
				},
			},
		},
	}
}

func (r *runner) listCatalog(kind store.CatalogKind) cli.ActionFunc {
	return func(c *cli.Context) error {
		entries, err := r.catalog(ctxOf(c), kind, c.Bool("refresh"))
		if err != nil {
			return exitError(err)
		}
		return r.outputJSON(entries)
	}
}

// catalog returns the cached entries of kind, reloading both catalogs from
// the service when the cache is stale or refresh is set.
func (r *runner) catalog(ctx context.Context, kind store.CatalogKind, refresh bool) ([]store.CatalogEntry, error) {
	if !refresh {
		entries, err := r.store.Catalog(ctx, kind, r.cfg.CatalogTTL)
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, store.ErrCatalogStale) {
			return nil, err
		}
	}

	fresh, err := r.refreshCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return fresh[kind], nil
}

func (r *runner) refreshCatalog(ctx context.Context) (map[store.CatalogKind][]store.CatalogEntry, error) {
	opts, err := browse.LoadOptions(ctx, r.client)
	if err != nil {
		return nil, err
	}

	now := r.now()
	categories := make([]store.CatalogEntry, 0, len(opts.Categories))
	for _, cat := range opts.Categories {
		categories = append(categories, store.CatalogEntry{ID: cat.ID, Name: cat.Name, FetchedAt: now})
	}
	sources := make([]store.CatalogEntry, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		sources = append(sources, store.CatalogEntry{ID: src.ID, Name: src.Name, BaseURL: src.BaseURL, FetchedAt: now})
	}

	fresh := map[store.CatalogKind][]store.CatalogEntry{
		store.CatalogCategories: categories,
		store.CatalogSources:    sources,
	}
	for kind, entries := range fresh {
		if err := r.store.SaveCatalog(ctx, kind, entries); err != nil {
			r.log.Warn("failed to cache catalog", "kind", kind, "error", err)
		}
	}
	return fresh, nil
}

// resolveEntry finds ref, a name or ID, in the catalog of kind. A miss in a
// cached catalog triggers one reload.
func (r *runner) resolveEntry(ctx context.Context, kind store.CatalogKind, ref string) (store.CatalogEntry, error) {
	if _, err := r.catalog(ctx, kind, false); err != nil {
		return store.CatalogEntry{}, exitError(err)
	}

	entry, err := r.store.LookupCatalog(ctx, kind, ref)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := r.refreshCatalog(ctx); err != nil {
			return store.CatalogEntry{}, exitError(err)
		}
		entry, err = r.store.LookupCatalog(ctx, kind, ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.CatalogEntry{}, cli.Exit(fmt.Sprintf("Unknown %s: %q", kind, ref), ExitUsageError)
	}
	if err != nil {
		return store.CatalogEntry{}, cli.Exit(err.Error(), ExitDataError)
	}
	return entry, nil
}

// resolveRef turns a --category or --source value into an ID. Numeric values
// are used as is; 0 means unset.
func (r *runner) resolveRef(ctx context.Context, kind store.CatalogKind, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	entry, err := r.resolveEntry(ctx, kind, ref)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func catalogSources(entries []store.CatalogEntry) []model.Source {
	sources := make([]model.Source, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, model.Source{ID: e.ID, Name: e.Name, BaseURL: e.BaseURL})
	}
	return sources
}

func (r *runner) fetcher() *feed.Fetcher {
	return feed.NewFetcher(&http.Client{Timeout: r.cfg.Timeout})
}

func (r *runner) exportSources(c *cli.Context) error {
	ctx := ctxOf(c)
	entries, err := r.catalog(ctx, store.CatalogSources, false)
	if err != nil {
		return exitError(err)
	}
	sources := catalogSources(entries)

	var discovered map[int64]string
	var failures map[string]string
	if c.Bool("discover") {
		discovered, failures = r.discoverFeeds(ctx, sources)
	}

	outputPath := c.String("output")
	var writer io.Writer

	if outputPath == "" {
		writer = r.out
	} else {
		file, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
		}
		defer file.Close()
		writer = file
	}

	if err := opml.Generate(writer, sources, discovered); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		result := map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(sources),
		}
		if c.Bool("discover") {
			result["feeds"] = len(discovered)
			result["errors"] = failures
		}
		return r.outputJSON(result)
	}
	return nil
}

// discoverFeeds looks up the feed of every source with a base URL. It returns
// the feeds found by source ID and the failures by source name.
func (r *runner) discoverFeeds(ctx context.Context, sources []model.Source) (map[int64]string, map[string]string) {
	fetcher := r.fetcher()
	found := make(map[int64]string)
	failed := make(map[string]string)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxDiscover)

	for _, src := range sources {
		if src.BaseURL == "" {
			continue
		}
		wg.Add(1)
		go func(src model.Source) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			feedURL, err := fetcher.Discover(ctx, src.BaseURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.log.Info("feed discovery failed", "source", src.Name, "error", err)
				failed[src.Name] = err.Error()
				return
			}
			found[src.ID] = feedURL
		}(src)
	}

	wg.Wait()
	return found, failed
}

func (r *runner) matchSources(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("Usage: news-cli sources match <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open file: %v", err), ExitDataError)
	}
	defer file.Close()

	subs, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	entries, err := r.catalog(ctxOf(c), store.CatalogSources, false)
	if err != nil {
		return exitError(err)
	}

	matches := opml.MatchSources(subs, catalogSources(entries))
	matched := 0
	for _, m := range matches {
		if m.Source != nil {
			matched++
		}
	}

	return r.outputJSON(map[string]interface{}{
		"total":   len(subs),
		"matched": matched,
		"matches": matches,
	})
}

func (r *runner) peekSource(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("Usage: news-cli sources peek <source>", ExitUsageError)
	}
	ctx := ctxOf(c)

	entry, err := r.resolveEntry(ctx, store.CatalogSources, c.Args().First())
	if err != nil {
		return err
	}
	if entry.BaseURL == "" {
		return cli.Exit(fmt.Sprintf("Source %q has no base URL", entry.Name), ExitDataError)
	}

	preview, err := r.fetcher().Preview(ctx, entry.BaseURL, c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to preview source: %v", err), ExitDataError)
	}

	return r.outputJSON(map[string]interface{}{
		"source":  entry,
		"preview": preview,
	})
}

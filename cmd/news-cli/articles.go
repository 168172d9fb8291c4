package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/news-cli/bookmark"
	"github.com/robertmeta/news-cli/browse"
	"github.com/robertmeta/news-cli/comments"
	"github.com/robertmeta/news-cli/store"
)

func (r *runner) articleCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "articles",
			Usage: "Search articles",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "keyword",
					Aliases: []string{"k"},
					Usage:   "Search keyword",
				},
				&cli.StringFlag{
					Name:    "category",
					Aliases: []string{"c"},
					Usage:   "Category name or ID",
				},
				&cli.StringFlag{
					Name:    "source",
					Aliases: []string{"s"},
					Usage:   "Source name or ID",
				},
				&cli.StringFlag{
					Name:  "from",
					Usage: "Published on or after date (YYYY-MM-DD)",
				},
				&cli.StringFlag{
					Name:  "to",
					Usage: "Published on or before date (YYYY-MM-DD)",
				},
				&cli.StringFlag{
					Name:  "since",
					Usage: "Published within duration (e.g., 7d, 2w, 3m, 1y)",
				},
				&cli.StringFlag{
					Name:  "sort",
					Usage: "Sort field (publishedAt, title)",
				},
				&cli.StringFlag{
					Name:  "dir",
					Usage: "Sort direction (asc, desc)",
				},
				&cli.IntFlag{
					Name:    "page",
					Aliases: []string{"p"},
					Value:   1,
					Usage:   "Page number, starting at 1",
				},
				&cli.IntFlag{
					Name:    "size",
					Aliases: []string{"n"},
					Usage:   "Articles per page (default: page_size from config)",
				},
			},
			Action: r.listArticles,
		},
		{
			Name:      "article",
			Usage:     "Show an article with its comments",
			ArgsUsage: "<article-id>",
			Action:    r.showArticle,
		},
	}
}

func (r *runner) listArticles(c *cli.Context) error {
	ctx := ctxOf(c)

	categoryID, err := r.resolveRef(ctx, store.CatalogCategories, c.String("category"))
	if err != nil {
		return err
	}
	sourceID, err := r.resolveRef(ctx, store.CatalogSources, c.String("source"))
	if err != nil {
		return err
	}

	if c.Int("page") < 1 {
		return cli.Exit(fmt.Sprintf("Invalid page: %d (pages start at 1)", c.Int("page")), ExitUsageError)
	}

	size := c.Int("size")
	if !c.IsSet("size") {
		size = r.cfg.PageSize
	}

	q, err := browse.BuildListQuery(browse.QueryFlags{
		Keyword:    c.String("keyword"),
		CategoryID: categoryID,
		SourceID:   sourceID,
		From:       c.String("from"),
		To:         c.String("to"),
		Since:      c.String("since"),
		Sort:       c.String("sort"),
		Dir:        c.String("dir"),
		Page:       c.Int("page"),
		Size:       size,
	}, r.now())
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	f := browse.NewFeed(r.client, q, r.log)
	defer f.Close()
	if err := f.Fetch(ctx); err != nil {
		return exitError(err)
	}

	view := f.Snapshot()
	return r.outputJSON(map[string]interface{}{
		"page":          view.Query.PageIndex + 1,
		"size":          view.Query.PageSize,
		"totalPages":    view.TotalPages,
		"totalElements": view.TotalElements,
		"articles":      view.Items,
	})
}

func (r *runner) showArticle(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("Usage: news-cli article <article-id>", ExitUsageError)
	}
	id, err := parseID(c.Args().First(), "article ID")
	if err != nil {
		return err
	}
	ctx := ctxOf(c)

	article, err := browse.ArticleDetail(ctx, r.client, id)
	if err != nil {
		return exitError(err)
	}

	result := map[string]interface{}{
		"article": article,
		"link":    article.Link(),
	}

	if r.session.State().Authenticated() {
		toggle := bookmark.NewToggle(r.client, r.session, id, nil, r.log)
		if err := toggle.Load(ctx); err != nil {
			result["savedError"] = err.Error()
		} else {
			result["saved"] = toggle.State().Saved
		}
	}

	section := comments.NewSection(r.client, r.session, id, r.log)
	if err := section.Load(ctx); err != nil {
		result["commentsError"] = err.Error()
	} else {
		result["comments"] = section.Items()
	}

	return r.outputJSON(result)
}

package browse

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/robertmeta/news-cli/model"
)

// Messages for the filter options and the article page.
const (
	MsgOptionsFailed = "Failed to load categories and sources."
	MsgArticleFailed = "Failed to load article. It might not exist or there was a network error."
)

// OptionsSource lists the filter choices.
type OptionsSource interface {
	Categories(ctx context.Context) ([]model.Category, error)
	Sources(ctx context.Context) ([]model.Source, error)
}

// ArticleSource fetches one article.
type ArticleSource interface {
	Article(ctx context.Context, id int64) (*model.Article, error)
}

// Options are the category and source choices of the filter bar.
type Options struct {
	Categories []model.Category `json:"categories"`
	Sources    []model.Source   `json:"sources"`
}

// LoadOptions fetches categories and sources concurrently.
func LoadOptions(ctx context.Context, src OptionsSource) (Options, error) {
	var opts Options
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := src.Categories(ctx)
		opts.Categories = c
		return err
	})
	g.Go(func() error {
		s, err := src.Sources(ctx)
		opts.Sources = s
		return err
	})

	if err := g.Wait(); err != nil {
		return Options{}, model.NewNotice(model.KindRead, MsgOptionsFailed, err)
	}
	if opts.Categories == nil {
		opts.Categories = []model.Category{}
	}
	if opts.Sources == nil {
		opts.Sources = []model.Source{}
	}
	return opts, nil
}

// ArticleDetail fetches a single article for display.
func ArticleDetail(ctx context.Context, src ArticleSource, id int64) (*model.Article, error) {
	a, err := src.Article(ctx, id)
	if err != nil {
		return nil, model.NewNotice(model.KindRead, MsgArticleFailed, err)
	}
	return a, nil
}

package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/news-cli/api"
	"github.com/robertmeta/news-cli/bookmark"
	"github.com/robertmeta/news-cli/comments"
	"github.com/robertmeta/news-cli/model"
	"github.com/robertmeta/news-cli/store"
)

// Preference messages.
const (
	msgPrefsFailed  = "Failed to load preferences."
	msgPrefsSaveErr = "Failed to save preferences."
)

func (r *runner) engageCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "comments",
			Usage: "Read and write article comments",
			Subcommands: []*cli.Command{
				{
					Name:      "list",
					Usage:     "List the comments of an article, newest first",
					ArgsUsage: "<article-id>",
					Action:    r.listComments,
				},
				{
					Name:      "add",
					Usage:     "Comment on an article",
					ArgsUsage: "<article-id> <text>...",
					Action:    r.addComment,
				},
				{
					Name:      "delete",
					Usage:     "Delete one of your comments",
					ArgsUsage: "<article-id> <comment-id>",
					Action:    r.deleteComment,
				},
			},
		},
		{
			Name:   "saved",
			Usage:  "List your saved articles",
			Action: r.listSaved,
		},
		{
			Name:      "save",
			Usage:     "Save an article",
			ArgsUsage: "<article-id>",
			Action:    r.setSaved(true),
		},
		{
			Name:      "unsave",
			Usage:     "Remove an article from your saved articles",
			ArgsUsage: "<article-id>",
			Action:    r.setSaved(false),
		},
		{
			Name:      "toggle",
			Usage:     "Flip the saved state of an article",
			ArgsUsage: "<article-id>",
			Action:    r.toggleSaved,
		},
		{
			Name:   "prefs",
			Usage:  "Show your preferences",
			Action: r.showPrefs,
			Subcommands: []*cli.Command{
				{
					Name:  "set",
					Usage: "Update your preferences",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "keywords",
							Usage: "Comma separated keywords",
						},
						&cli.StringFlag{
							Name:  "sources",
							Usage: "Comma separated source names or IDs",
						},
						&cli.StringFlag{
							Name:  "categories",
							Usage: "Comma separated category names or IDs",
						},
					},
					Action: r.setPrefs,
				},
			},
		},
	}
}

func (r *runner) articleArg(c *cli.Context, usage string) (int64, error) {
	if c.Args().Len() < 1 {
		return 0, cli.Exit("Usage: news-cli "+usage, ExitUsageError)
	}
	return parseID(c.Args().First(), "article ID")
}

func (r *runner) listComments(c *cli.Context) error {
	articleID, err := r.articleArg(c, "comments list <article-id>")
	if err != nil {
		return err
	}

	section := comments.NewSection(r.client, r.session, articleID, r.log)
	if err := section.Load(ctxOf(c)); err != nil {
		return exitError(err)
	}
	return r.outputJSON(section.Items())
}

func (r *runner) addComment(c *cli.Context) error {
	articleID, err := r.articleArg(c, "comments add <article-id> <text>...")
	if err != nil {
		return err
	}
	content := strings.Join(c.Args().Tail(), " ")

	section := comments.NewSection(r.client, r.session, articleID, r.log)
	created, err := section.Add(ctxOf(c), content)
	if err != nil {
		return exitError(err)
	}
	return r.outputJSON(map[string]interface{}{
		"success": true,
		"comment": created,
	})
}

func (r *runner) deleteComment(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("Usage: news-cli comments delete <article-id> <comment-id>", ExitUsageError)
	}
	articleID, err := parseID(c.Args().Get(0), "article ID")
	if err != nil {
		return err
	}
	commentID, err := parseID(c.Args().Get(1), "comment ID")
	if err != nil {
		return err
	}
	ctx := ctxOf(c)

	section := comments.NewSection(r.client, r.session, articleID, r.log)
	if _, err := r.session.Identity(); err == nil {
		// Ownership is checked against the loaded list.
		if err := section.Load(ctx); err != nil {
			return exitError(err)
		}
	}
	if err := section.Delete(ctx, commentID); err != nil {
		return exitError(err)
	}
	return r.outputJSON(map[string]interface{}{
		"success": true,
		"deleted": commentID,
	})
}

func (r *runner) listSaved(c *cli.Context) error {
	list := bookmark.NewSavedList(r.client, r.session, r.log)
	if err := list.Refresh(ctxOf(c)); err != nil {
		return exitError(err)
	}
	return r.outputJSON(list.Items())
}

func (r *runner) loadToggle(c *cli.Context, usage string) (*bookmark.Toggle, error) {
	articleID, err := r.articleArg(c, usage)
	if err != nil {
		return nil, err
	}
	if _, err := r.session.Identity(); err != nil {
		return nil, exitError(model.LoginRequired(bookmark.MsgLoginToSave))
	}

	t := bookmark.NewToggle(r.client, r.session, articleID, nil, r.log)
	if err := t.Load(ctxOf(c)); err != nil {
		return nil, exitError(err)
	}
	return t, nil
}

func (r *runner) setSaved(want bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		usage := "unsave <article-id>"
		if want {
			usage = "save <article-id>"
		}
		t, err := r.loadToggle(c, usage)
		if err != nil {
			return err
		}
		defer t.Close()

		changed := false
		if t.State().Saved != want {
			if _, err := t.Toggle(ctxOf(c)); err != nil {
				return exitError(err)
			}
			changed = true
		}
		return r.outputJSON(toggleResult(t.State(), changed))
	}
}

func (r *runner) toggleSaved(c *cli.Context) error {
	t, err := r.loadToggle(c, "toggle <article-id>")
	if err != nil {
		return err
	}
	defer t.Close()

	if _, err := t.Toggle(ctxOf(c)); err != nil {
		return exitError(err)
	}
	return r.outputJSON(toggleResult(t.State(), true))
}

func toggleResult(st bookmark.State, changed bool) map[string]interface{} {
	return map[string]interface{}{
		"articleId": st.ArticleID,
		"saved":     st.Saved,
		"changed":   changed,
	}
}

// preferences loads the stored preferences of the signed-in user. A user who
// never saved any gets an empty set.
func (r *runner) preferences(ctx context.Context) (*model.Preferences, error) {
	userID, err := r.session.UserID(ctx)
	if err != nil {
		return nil, err
	}

	prefs, err := r.client.Preferences(ctx, userID)
	if api.StatusCode(err) == http.StatusNotFound {
		return &model.Preferences{
			UserID:               userID,
			PreferredSourceIDs:   []int64{},
			PreferredCategoryIDs: []int64{},
		}, nil
	}
	if err != nil {
		return nil, model.NewNotice(model.KindRead, api.MessageOr(err, msgPrefsFailed), err)
	}
	if prefs.UserID == 0 {
		prefs.UserID = userID
	}
	return prefs, nil
}

func (r *runner) showPrefs(c *cli.Context) error {
	prefs, err := r.preferences(ctxOf(c))
	if err != nil {
		return exitError(err)
	}
	return r.outputJSON(prefs)
}

func (r *runner) setPrefs(c *cli.Context) error {
	ctx := ctxOf(c)
	prefs, err := r.preferences(ctx)
	if err != nil {
		return exitError(err)
	}

	if c.IsSet("keywords") {
		prefs.PreferredKeywords = strings.Join(splitList(c.String("keywords")), ",")
	}
	if c.IsSet("sources") {
		ids, err := r.resolveRefs(ctx, store.CatalogSources, c.String("sources"))
		if err != nil {
			return err
		}
		prefs.PreferredSourceIDs = ids
	}
	if c.IsSet("categories") {
		ids, err := r.resolveRefs(ctx, store.CatalogCategories, c.String("categories"))
		if err != nil {
			return err
		}
		prefs.PreferredCategoryIDs = ids
	}

	updated, err := r.client.UpdatePreferences(ctx, prefs.UserID, *prefs)
	if err != nil {
		return exitError(model.NewNotice(model.KindWrite, api.MessageOr(err, msgPrefsSaveErr), err))
	}
	return r.outputJSON(updated)
}

func (r *runner) resolveRefs(ctx context.Context, kind store.CatalogKind, list string) ([]int64, error) {
	ids := []int64{}
	for _, ref := range splitList(list) {
		id, err := r.resolveRef(ctx, kind, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

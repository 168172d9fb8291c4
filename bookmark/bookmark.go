// Package bookmark reconciles the saved state of articles with the service.
package bookmark

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robertmeta/news-cli/api"
	"github.com/robertmeta/news-cli/logging"
	"github.com/robertmeta/news-cli/model"
)

// User-facing messages.
const (
	MsgLoginToSave  = "You must be logged in to save articles."
	MsgToggleFailed = "Failed to toggle saved status."
	MsgCheckFailed  = "Failed to check saved status."
	MsgLoginToView  = "Please log in to view your saved articles."
	MsgListFailed   = "Failed to load saved articles."
)

var (
	// ErrBusy is returned while a save or unsave call is outstanding.
	ErrBusy = errors.New("a save request is already in flight")
	// ErrClosed is returned once a toggle or saved list is closed.
	ErrClosed = errors.New("bookmark closed")
)

// Session is the part of the session store bookmarks depend on.
type Session interface {
	Identity() (model.Identity, error)
	UserID(ctx context.Context) (int64, error)
}

// Service is the saved-articles API.
type Service interface {
	SavedArticles(ctx context.Context, userID int64) ([]model.Article, error)
	SaveArticle(ctx context.Context, userID, articleID int64) error
	UnsaveArticle(ctx context.Context, userID, articleID int64) error
}

// ToggleFunc is told about every confirmed change of saved state.
type ToggleFunc func(articleID int64, saved bool)

// State is a snapshot of a Toggle.
type State struct {
	ArticleID int64 `json:"articleId"`
	Saved     bool  `json:"saved"`
	Enabled   bool  `json:"enabled"`
	Busy      bool  `json:"busy"`
}

// Toggle is the saved state of one article for the current user. Local state
// changes only after the service confirms the call.
type Toggle struct {
	svc       Service
	sess      Session
	articleID int64
	onToggle  ToggleFunc
	log       *slog.Logger

	mu      sync.Mutex
	saved   bool
	enabled bool
	busy    bool
	closed  bool
}

// NewToggle creates a toggle for articleID. onToggle may be nil.
func NewToggle(svc Service, sess Session, articleID int64, onToggle ToggleFunc, log *slog.Logger) *Toggle {
	if log == nil {
		log = logging.Discard()
	}
	return &Toggle{
		svc:       svc,
		sess:      sess,
		articleID: articleID,
		onToggle:  onToggle,
		log:       log.With("component", "bookmark", "article_id", articleID),
	}
}

// State returns the current state.
func (t *Toggle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{ArticleID: t.articleID, Saved: t.saved, Enabled: t.enabled && !t.busy, Busy: t.busy}
}

// Load determines the initial saved state by looking the article up in the
// user's saved collection. Without a session the toggle stays unsaved and
// disabled and no call is made.
func (t *Toggle) Load(ctx context.Context) error {
	if _, err := t.sess.Identity(); err != nil {
		t.mu.Lock()
		t.saved, t.enabled = false, false
		t.mu.Unlock()
		return nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.busy {
		t.mu.Unlock()
		return ErrBusy
	}
	t.busy = true
	t.mu.Unlock()

	saved, err := t.fetchSaved(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	if t.closed {
		return ErrClosed
	}
	if err != nil {
		return err
	}
	t.saved, t.enabled = saved, true
	return nil
}

func (t *Toggle) fetchSaved(ctx context.Context) (bool, error) {
	userID, err := t.sess.UserID(ctx)
	if err != nil {
		return false, err
	}
	list, err := t.svc.SavedArticles(ctx, userID)
	if err != nil {
		t.log.Warn("saved status check failed", "error", err)
		return false, model.NewNotice(model.KindRead, MsgCheckFailed, err)
	}
	for _, a := range list {
		if a.ID == t.articleID {
			return true, nil
		}
	}
	return false, nil
}

// Toggle saves an unsaved article or unsaves a saved one and returns the new
// state. Only one call may be outstanding.
func (t *Toggle) Toggle(ctx context.Context) (bool, error) {
	if _, err := t.sess.Identity(); err != nil {
		return false, model.LoginRequired(MsgLoginToSave)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, ErrClosed
	}
	if t.busy {
		saved := t.saved
		t.mu.Unlock()
		return saved, ErrBusy
	}
	t.busy = true
	want := !t.saved
	t.mu.Unlock()

	err := t.write(ctx, want)

	t.mu.Lock()
	t.busy = false
	if t.closed {
		t.mu.Unlock()
		return want, ErrClosed
	}
	if err != nil {
		saved := t.saved
		t.mu.Unlock()
		return saved, err
	}
	t.saved, t.enabled = want, true
	cb := t.onToggle
	t.mu.Unlock()

	t.log.Debug("saved state changed", "saved", want)
	if cb != nil {
		cb(t.articleID, want)
	}
	return want, nil
}

func (t *Toggle) write(ctx context.Context, save bool) error {
	userID, err := t.sess.UserID(ctx)
	if err != nil {
		return err
	}
	if save {
		err = t.svc.SaveArticle(ctx, userID, t.articleID)
	} else {
		err = t.svc.UnsaveArticle(ctx, userID, t.articleID)
	}
	if err != nil {
		t.log.Warn("toggle failed", "save", save, "error", err)
		return model.NewNotice(model.KindWrite, api.MessageOr(err, MsgToggleFailed), err)
	}
	return nil
}

// Close makes the toggle ignore responses that arrive later.
func (t *Toggle) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// SavedList is the current user's saved articles.
type SavedList struct {
	svc  Service
	sess Session
	log  *slog.Logger

	mu     sync.Mutex
	items  []model.Article
	closed bool
}

// NewSavedList creates an empty list.
func NewSavedList(svc Service, sess Session, log *slog.Logger) *SavedList {
	if log == nil {
		log = logging.Discard()
	}
	return &SavedList{svc: svc, sess: sess, log: log.With("component", "saved")}
}

// Refresh reloads the list. It requires a session.
func (l *SavedList) Refresh(ctx context.Context) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if _, err := l.sess.Identity(); err != nil {
		l.mu.Lock()
		l.items = nil
		l.mu.Unlock()
		return model.LoginRequired(MsgLoginToView)
	}
	userID, err := l.sess.UserID(ctx)
	if err != nil {
		return err
	}

	items, err := l.svc.SavedArticles(ctx, userID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err != nil {
		l.log.Warn("failed to load saved articles", "error", err)
		return model.NewNotice(model.KindRead, api.MessageOr(err, MsgListFailed), err)
	}
	l.items = items
	return nil
}

// Close makes the list ignore responses that arrive later.
func (l *SavedList) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// Items returns the loaded articles.
func (l *SavedList) Items() []model.Article {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Article, len(l.items))
	copy(out, l.items)
	return out
}

// OnToggle drops an article from the list once it is unsaved. It satisfies
// ToggleFunc.
func (l *SavedList) OnToggle(articleID int64, saved bool) {
	if saved {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	kept := l.items[:0]
	for _, a := range l.items {
		if a.ID != articleID {
			kept = append(kept, a)
		}
	}
	l.items = kept
}

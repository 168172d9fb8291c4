// Package comments manages the comment thread of one article.
package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/robertmeta/news-cli/api"
	"github.com/robertmeta/news-cli/logging"
	"github.com/robertmeta/news-cli/model"
)

// User-facing messages.
const (
	MsgLoadFailed     = "Failed to load comments."
	MsgLoginToAdd     = "You must be logged in to add a comment."
	MsgEmpty          = "Comment cannot be empty."
	MsgAddFailed      = "Failed to add comment. Please try again."
	MsgLoginToDelete  = "You must be logged in to delete comments."
	MsgNotOwner       = "You can only delete your own comments."
	MsgDeleteFailed   = "Failed to delete comment. You might not have permission."
	msgTooLongPattern = "Comment cannot exceed %d characters."
)

// MsgTooLong is shown for comments over model.MaxCommentLength characters.
var MsgTooLong = fmt.Sprintf(msgTooLongPattern, model.MaxCommentLength)

var (
	// ErrBusy is returned while another add or delete is outstanding.
	ErrBusy = errors.New("a comment request is already in flight")
	// ErrClosed is returned once the section is closed. Responses that
	// arrive after Close are dropped.
	ErrClosed = errors.New("comment section closed")
)

// Session is the part of the session store comments depend on.
type Session interface {
	Identity() (model.Identity, error)
	UserID(ctx context.Context) (int64, error)
}

// Service is the comments API.
type Service interface {
	Comments(ctx context.Context, articleID int64) ([]model.Comment, error)
	AddComment(ctx context.Context, articleID, userID int64, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, articleID, commentID, userID int64) error
}

// Section is the comment list of one article.
type Section struct {
	svc       Service
	sess      Session
	articleID int64
	log       *slog.Logger

	mu     sync.Mutex
	items  []model.Comment
	busy   bool
	closed bool
}

// NewSection creates an empty section for articleID.
func NewSection(svc Service, sess Session, articleID int64, log *slog.Logger) *Section {
	if log == nil {
		log = logging.Discard()
	}
	return &Section{
		svc:       svc,
		sess:      sess,
		articleID: articleID,
		log:       log.With("component", "comments", "article_id", articleID),
	}
}

// Items returns the loaded comments, newest first.
func (s *Section) Items() []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Comment, len(s.items))
	copy(out, s.items)
	return out
}

// Load fetches the comments. Reading needs no session.
func (s *Section) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	list, err := s.svc.Comments(ctx, s.articleID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		s.log.Warn("failed to load comments", "error", err)
		return model.NewNotice(model.KindRead, MsgLoadFailed, err)
	}
	s.items = list
	return nil
}

// Validate checks comment text before it is sent.
func Validate(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return model.NewNotice(model.KindWrite, MsgEmpty, nil)
	}
	if utf8.RuneCountInString(trimmed) > model.MaxCommentLength {
		return model.NewNotice(model.KindWrite, MsgTooLong, nil)
	}
	return nil
}

// Add posts a comment as the signed-in user and puts it at the top of the
// list.
func (s *Section) Add(ctx context.Context, content string) (*model.Comment, error) {
	if _, err := s.sess.Identity(); err != nil {
		return nil, model.LoginRequired(MsgLoginToAdd)
	}
	if err := Validate(content); err != nil {
		return nil, err
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	userID, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	created, err := s.svc.AddComment(ctx, s.articleID, userID, strings.TrimSpace(content))
	if err != nil {
		s.log.Warn("failed to add comment", "error", err)
		return nil, model.NewNotice(model.KindWrite, api.MessageOr(err, MsgAddFailed), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return created, ErrClosed
	}
	s.items = append([]model.Comment{*created}, s.items...)
	return created, nil
}

// Delete removes one of the signed-in user's own comments.
func (s *Section) Delete(ctx context.Context, commentID int64) error {
	id, err := s.sess.Identity()
	if err != nil {
		return model.LoginRequired(MsgLoginToDelete)
	}

	s.mu.Lock()
	var author string
	found := false
	for _, c := range s.items {
		if c.ID == commentID {
			author, found = c.Username, true
			break
		}
	}
	s.mu.Unlock()
	if found && author != id.Username {
		return model.NewNotice(model.KindAuthorization, MsgNotOwner, nil)
	}

	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	userID, err := s.sess.UserID(ctx)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteComment(ctx, s.articleID, commentID, userID); err != nil {
		s.log.Warn("failed to delete comment", "comment_id", commentID, "error", err)
		return model.NewNotice(model.KindWrite, api.MessageOr(err, MsgDeleteFailed), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	kept := s.items[:0]
	for _, c := range s.items {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	s.items = kept
	return nil
}

// Close makes the section ignore responses that arrive later.
func (s *Section) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Section) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Section) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Section) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Package session owns the current credential and identity. It persists the
// credential through a TokenStore, restores it once at startup, and keeps the
// api.Pipeline in step with every credential change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robertmeta/news-cli/api"
	"github.com/robertmeta/news-cli/logging"
	"github.com/robertmeta/news-cli/model"
)

// User-facing messages.
const (
	MsgLoginFailed    = "Invalid username or password"
	MsgRegisterFailed = "Registration failed. Please try again."
	MsgUsernameTaken  = "Username already exists."
	MsgEmailTaken     = "Email already registered."
	MsgLoginRequired  = "You must be logged in."
	MsgUnknownUserID  = "Could not determine your user id. Please log in again."
)

// ErrMissingToken is returned when the service accepts credentials but
// issues no token.
var ErrMissingToken = errors.New("authentication response carried no token")

// Authenticator is the subset of the API client the store needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, username, email, password string) (*api.AuthResponse, error)
	Me(ctx context.Context) (*model.Identity, error)
}

// TokenStore persists the credential.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Store is the session store. It is safe for concurrent use.
type Store struct {
	auth     Authenticator
	tokens   TokenStore
	pipeline *api.Pipeline
	log      *slog.Logger
	now      func() time.Time

	once       sync.Once
	done       chan struct{}
	restoreErr error

	mu         sync.Mutex
	gen        uint64
	identity   *model.Identity
	credential string
	loading    bool
	listeners  map[int]func(model.SessionState)
	nextListen int
}

// New creates a Store. The pipeline must be the one used by the content
// service client.
func New(auth Authenticator, tokens TokenStore, pipeline *api.Pipeline, log *slog.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		auth:      auth,
		tokens:    tokens,
		pipeline:  pipeline,
		log:       log.With("component", "session"),
		now:       time.Now,
		done:      make(chan struct{}),
		loading:   true,
		listeners: make(map[int]func(model.SessionState)),
	}
}

// Restore seeds the session from the persisted credential and confirms it
// with the service. It runs once; later calls return the first result.
//
// A credential the service rejects is forgotten. A credential that cannot be
// confirmed for any other reason leaves the session unauthenticated but stays
// persisted, and the failure is returned.
func (s *Store) Restore(ctx context.Context) error {
	s.once.Do(func() {
		s.restoreErr = s.restore(ctx)

		s.mu.Lock()
		s.loading = false
		state := s.snapshotLocked()
		s.mu.Unlock()

		close(s.done)
		s.notify(state)
	})
	return s.restoreErr
}

// Wait blocks until Restore has completed.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) restore(ctx context.Context) error {
	token, err := s.tokens.LoadToken(ctx)
	if err != nil {
		s.log.Warn("failed to read stored credential", "error", err)
		return fmt.Errorf("failed to load token: %w", err)
	}
	if token == "" {
		s.log.Debug("no stored credential")
		return nil
	}

	s.mu.Lock()
	gen := s.gen
	s.credential = token
	s.pipeline.Replace(api.BearerRule(token))
	s.mu.Unlock()

	me, err := s.auth.Me(ctx)
	switch {
	case err == nil:
		id := *me
		if id.ID == 0 {
			if c, cerr := parseClaims(token); cerr == nil {
				id.ID = c.UserID
			}
		}
		s.log.Debug("stored credential confirmed", "username", id.Username)
		s.settle(ctx, gen, &id, false)
		return nil

	case api.IsUnauthorized(err):
		s.log.Info("stored credential rejected", "status", api.StatusCode(err))
		s.settle(ctx, gen, nil, true)
		return nil

	case api.StatusCode(err) == http.StatusNotFound:
		c, cerr := parseClaims(token)
		if cerr != nil || c.Subject == "" {
			s.settle(ctx, gen, nil, false)
			return fmt.Errorf("failed to confirm stored credential: %w", errors.Join(err, cerr))
		}
		if c.expired(s.now()) {
			s.log.Info("stored credential expired", "expires", c.Expires)
			s.settle(ctx, gen, nil, true)
			return nil
		}
		s.log.Debug("identity taken from token claims", "username", c.Subject)
		s.settle(ctx, gen, &model.Identity{ID: c.UserID, Username: c.Subject, Email: c.Email}, false)
		return nil

	default:
		s.log.Warn("could not confirm stored credential", "error", err)
		s.settle(ctx, gen, nil, false)
		return fmt.Errorf("failed to confirm stored credential: %w", err)
	}
}

// settle applies a restore outcome unless a login or logout has happened
// since the restore began.
func (s *Store) settle(ctx context.Context, gen uint64, identity *model.Identity, forget bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if identity != nil {
		s.identity = identity
	} else {
		s.identity = nil
		s.credential = ""
		s.pipeline.Clear()
	}
	s.mu.Unlock()

	if forget {
		if err := s.tokens.DeleteToken(ctx); err != nil {
			s.log.Warn("failed to remove stored credential", "error", err)
		}
	}
}

// Login authenticates with username and password. On failure the session is
// cleared and the returned error is a *model.Notice carrying the message to
// show.
func (s *Store) Login(ctx context.Context, username, password string) (model.Identity, error) {
	resp, err := s.auth.Login(ctx, username, password)
	if err == nil && resp.Token == "" {
		err = ErrMissingToken
	}
	if err != nil {
		s.log.Info("login failed", "username", username, "error", err)
		_ = s.reset(ctx)
		return model.Identity{}, model.NewNotice(model.KindAuthentication, api.MessageOr(err, MsgLoginFailed), err)
	}
	return s.establish(ctx, resp)
}

// Register creates an account and signs in with it. Duplicate usernames and
// emails get their own messages.
func (s *Store) Register(ctx context.Context, username, email, password string) (model.Identity, error) {
	resp, err := s.auth.Register(ctx, username, email, password)
	if err == nil && resp.Token == "" {
		err = ErrMissingToken
	}
	if err != nil {
		s.log.Info("registration failed", "username", username, "error", err)
		_ = s.reset(ctx)
		return model.Identity{}, model.NewNotice(model.KindAuthentication, registerMessage(err), err)
	}
	return s.establish(ctx, resp)
}

// Logout clears the session and removes the persisted credential.
func (s *Store) Logout(ctx context.Context) error {
	s.log.Debug("logout")
	return s.reset(ctx)
}

func (s *Store) establish(ctx context.Context, resp *api.AuthResponse) (model.Identity, error) {
	id := model.Identity{Username: resp.Username, Email: resp.Email}
	if c, err := parseClaims(resp.Token); err == nil {
		id.ID = c.UserID
	}

	s.mu.Lock()
	s.gen++
	s.identity = &id
	s.credential = resp.Token
	s.pipeline.Replace(api.BearerRule(resp.Token))
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(state)

	if err := s.tokens.SaveToken(ctx, resp.Token); err != nil {
		s.log.Warn("failed to persist credential", "error", err)
		return id, fmt.Errorf("failed to persist token: %w", err)
	}
	s.log.Debug("signed in", "username", id.Username)
	return id, nil
}

func (s *Store) reset(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	s.identity = nil
	s.credential = ""
	s.pipeline.Clear()
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(state)

	if err := s.tokens.DeleteToken(ctx); err != nil {
		s.log.Warn("failed to remove stored credential", "error", err)
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// State returns a snapshot of the session.
func (s *Store) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Identity returns the signed-in identity, or an authorization Notice.
func (s *Store) Identity() (model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.credential == "" {
		return model.Identity{}, model.LoginRequired(MsgLoginRequired)
	}
	return *s.identity, nil
}

// UserID returns the numeric id of the signed-in user. An id not known from
// login is looked up with the service, then in the token claims, and
// remembered.
func (s *Store) UserID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.identity == nil || s.credential == "" {
		s.mu.Unlock()
		return 0, model.LoginRequired(MsgLoginRequired)
	}
	if s.identity.ID != 0 {
		id := s.identity.ID
		s.mu.Unlock()
		return id, nil
	}
	gen, token := s.gen, s.credential
	s.mu.Unlock()

	var resolved int64
	me, err := s.auth.Me(ctx)
	if err == nil {
		resolved = me.ID
	} else {
		s.log.Debug("identity lookup failed", "error", err)
	}
	if resolved == 0 {
		if c, cerr := parseClaims(token); cerr == nil {
			resolved = c.UserID
		}
	}
	if resolved == 0 {
		return 0, model.NewNotice(model.KindAuthorization, MsgUnknownUserID, err)
	}

	s.mu.Lock()
	if s.gen == gen && s.identity != nil {
		s.identity.ID = resolved
	}
	s.mu.Unlock()
	return resolved, nil
}

// Subscribe registers fn to be called after every state change. The
// returned function removes it.
func (s *Store) Subscribe(fn func(model.SessionState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.nextListen
	s.nextListen++
	s.listeners[key] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, key)
	}
}

func (s *Store) notify(state model.SessionState) {
	s.mu.Lock()
	fns := make([]func(model.SessionState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) snapshotLocked() model.SessionState {
	state := model.SessionState{Loading: s.loading}
	if s.identity != nil && s.credential != "" {
		id := *s.identity
		state.Identity = &id
		state.Credential = s.credential
	}
	return state
}

func registerMessage(err error) string {
	msg, ok := api.ServerMessage(err)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "username already exists"),
		strings.Contains(lower, "already exists with username"):
		return MsgUsernameTaken
	case strings.Contains(lower, "email already registered"),
		strings.Contains(lower, "already exists with email"):
		return MsgEmailTaken
	case ok:
		return msg
	default:
		return MsgRegisterFailed
	}
}

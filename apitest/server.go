// Package apitest runs an in-memory news service for tests. It serves the
// authentication routes under /api/auth and the content routes under /api,
// issues signed JWTs, and records every request it sees.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/robertmeta/news-cli/model"
)

// Route names usable with Fail.
const (
	RouteLogin         = "login"
	RouteRegister      = "register"
	RouteMe            = "me"
	RouteArticles      = "articles"
	RouteArticle       = "article"
	RouteCategories    = "categories"
	RouteSources       = "sources"
	RouteComments      = "comments"
	RouteAddComment    = "add-comment"
	RouteDeleteComment = "delete-comment"
	RouteSaved         = "saved"
	RouteSave          = "save"
	RouteUnsave        = "unsave"
	RoutePreferences   = "preferences"
	RouteUpdatePrefs   = "update-preferences"
)

var signingKey = []byte("apitest-signing-key")

// Request is one recorded request.
type Request struct {
	Route         string
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
}

type failure struct {
	status int
	body   string
}

type user struct {
	id       int64
	username string
	email    string
	password string
}

// Server is a fake news service.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[string]*user
	articles   map[int64]model.Article
	categories []model.Category
	sources    []model.Source
	comments   map[int64][]model.Comment
	saved      map[int64]map[int64]time.Time
	prefs      map[int64]model.Preferences
	failures   map[string]failure
	requests   []Request
	nextID     int64
	now        func() time.Time
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		users:    make(map[string]*user),
		articles: make(map[int64]model.Article),
		comments: make(map[int64][]model.Comment),
		saved:    make(map[int64]map[int64]time.Time),
		prefs:    make(map[int64]model.Preferences),
		failures: make(map[string]failure),
		nextID:   1000,
		now:      time.Now,
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// AuthURL is the base address of the authentication service.
func (s *Server) AuthURL() string {
	return s.URL + "/api/auth"
}

// ContentURL is the base address of the content service.
func (s *Server) ContentURL() string {
	return s.URL + "/api"
}

// AddUser registers an account directly and returns its id.
func (s *Server) AddUser(username, email, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password).id
}

// Token returns a valid token for an existing user.
func (s *Server) Token(username string) string {
	s.mu.Lock()
	u := s.users[username]
	s.mu.Unlock()
	if u == nil {
		return ""
	}
	return IssueToken(u.username, u.id, time.Hour)
}

// IssueToken signs a token carrying username and id that expires after ttl.
// A negative ttl yields an already expired token.
func IssueToken(username string, id int64, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":    username,
		"userId": id,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return signed
}

// AddArticle stores an article. A zero ID is assigned.
func (s *Server) AddArticle(a model.Article) model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.articles[a.ID] = a
	return a
}

// SetCatalog replaces categories and sources.
func (s *Server) SetCatalog(categories []model.Category, sources []model.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
	s.sources = sources
}

// AddComment stores a comment on an article.
func (s *Server) AddComment(articleID int64, username, content string) model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.Comment{
		ID:            s.id(),
		Content:       content,
		CreatedAt:     model.Timestamp{Time: s.now().UTC().Truncate(time.Second)},
		Username:      username,
		NewsArticleID: articleID,
	}
	s.comments[articleID] = append(s.comments[articleID], c)
	return c
}

// Save marks an article as saved for a user.
func (s *Server) Save(userID, articleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(userID, articleID)
}

// IsSaved reports whether userID has saved articleID.
func (s *Server) IsSaved(userID, articleID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[userID][articleID]
	return ok
}

// Fail makes route answer with status and a {"message": message} body until
// Recover is called. An empty message sends an empty body.
func (s *Server) Fail(route string, status int, message string) {
	body := ""
	if message != "" {
		data, _ := json.Marshal(map[string]string{"message": message})
		body = string(data)
	}
	s.FailRaw(route, status, body)
}

// FailRaw is Fail with a literal response body.
func (s *Server) FailRaw(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

// Recover clears an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Requests returns every recorded request.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests for one route.
func (s *Server) RequestsTo(route string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost).Name(RouteLogin)
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost).Name(RouteRegister)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users/me", s.authed(s.handleMe)).Methods(http.MethodGet).Name(RouteMe)
	api.HandleFunc("/articles", s.handleArticles).Methods(http.MethodGet).Name(RouteArticles)
	api.HandleFunc("/articles/{id:[0-9]+}", s.handleArticle).Methods(http.MethodGet).Name(RouteArticle)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet).Name(RouteCategories)
	api.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet).Name(RouteSources)
	api.HandleFunc("/articles/{id:[0-9]+}/comments", s.handleComments).Methods(http.MethodGet).Name(RouteComments)
	api.HandleFunc("/articles/{id:[0-9]+}/comments", s.authed(s.handleAddComment)).Methods(http.MethodPost).Name(RouteAddComment)
	api.HandleFunc("/articles/{id:[0-9]+}/comments/{commentID:[0-9]+}", s.authed(s.handleDeleteComment)).Methods(http.MethodDelete).Name(RouteDeleteComment)
	api.HandleFunc("/users/{userID:[0-9]+}/saved-articles", s.authed(s.handleSaved)).Methods(http.MethodGet).Name(RouteSaved)
	api.HandleFunc("/users/{userID:[0-9]+}/saved-articles/{id:[0-9]+}", s.authed(s.handleSave)).Methods(http.MethodPost).Name(RouteSave)
	api.HandleFunc("/users/{userID:[0-9]+}/saved-articles/{id:[0-9]+}", s.authed(s.handleUnsave)).Methods(http.MethodDelete).Name(RouteUnsave)
	api.HandleFunc("/users/{userID:[0-9]+}/preferences", s.authed(s.handlePreferences)).Methods(http.MethodGet).Name(RoutePreferences)
	api.HandleFunc("/users/{userID:[0-9]+}/preferences", s.authed(s.handleUpdatePreferences)).Methods(http.MethodPut).Name(RouteUpdatePrefs)

	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Route:         name,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		f, failing := s.failures[name]
		s.mu.Unlock()

		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authed rejects requests without a valid bearer token and passes the
// caller's account to h.
func (s *Server) authed(h func(http.ResponseWriter, *http.Request, *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeMessage(w, http.StatusUnauthorized, "Full authentication is required to access this resource")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		sub, _ := claims.GetSubject()
		s.mu.Lock()
		u := s.users[sub]
		s.mu.Unlock()
		if u == nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h(w, r, u)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	s.mu.Lock()
	u := s.users[req.Username]
	s.mu.Unlock()
	if u == nil || u.password != req.Password {
		writeMessage(w, http.StatusUnauthorized, "Bad credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"username": u.username,
		"email":    u.email,
		"token":    IssueToken(u.username, u.id, time.Hour),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = "Username is required"
	}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "Email should be valid"
	}
	if len(req.Password) < 6 {
		fields["password"] = "Password must be at least 6 characters"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	s.mu.Lock()
	if _, taken := s.users[req.Username]; taken {
		s.mu.Unlock()
		writeMessage(w, http.StatusConflict, fmt.Sprintf("User already exists with username : '%s'", req.Username))
		return
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.email, req.Email) {
			s.mu.Unlock()
			writeMessage(w, http.StatusConflict, "Email already registered")
			return
		}
	}
	u := s.addUserLocked(req.Username, req.Email, req.Password)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{
		"username": u.username,
		"email":    u.email,
		"token":    IssueToken(u.username, u.id, time.Hour),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, u *user) {
	writeJSON(w, http.StatusOK, model.Identity{ID: u.id, Username: u.username, Email: u.email})
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = model.DefaultPageSize
	}
	keyword := strings.ToLower(q.Get("keyword"))

	s.mu.Lock()
	var matched []model.Article
	for _, a := range s.articles {
		if keyword != "" && !strings.Contains(strings.ToLower(a.Title+" "+a.Description), keyword) {
			continue
		}
		if name := s.categoryNameLocked(q.Get("categoryId")); name != "" && a.CategoryName != name {
			continue
		}
		if name := s.sourceNameLocked(q.Get("sourceId")); name != "" && a.SourceName != name {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.Unlock()

	sortArticles(matched, q.Get("sortBy"), q.Get("sortDir"))

	total := len(matched)
	pages := (total + size - 1) / size
	start := min(page*size, total)
	end := min(start+size, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"content":       append([]model.Article{}, matched[start:end]...),
		"pageNumber":    page,
		"pageSize":      size,
		"totalElements": total,
		"totalPages":    pages,
		"last":          page >= pages-1,
	})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	a, ok := s.articles[id]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("NewsArticle not found with id : '%d'", id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]model.Category{}, s.categories...))
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]model.Source{}, s.sources...))
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	s.mu.Lock()
	out := append([]model.Comment{}, s.comments[id]...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsQuery(w, r, u) {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"content": "Comment content cannot be empty"})
		return
	}
	writeJSON(w, http.StatusCreated, s.AddComment(pathID(r, "id"), u.username, req.Content))
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsQuery(w, r, u) {
		return
	}
	articleID, commentID := pathID(r, "id"), pathID(r, "commentID")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.comments[articleID]
	for i, c := range list {
		if c.ID != commentID {
			continue
		}
		if c.Username != u.username {
			writeMessage(w, http.StatusForbidden, "You are not authorized to delete this comment")
			return
		}
		s.comments[articleID] = append(list[:i:i], list[i+1:]...)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeMessage(w, http.StatusNotFound, fmt.Sprintf("Comment not found with id : '%d'", commentID))
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsPath(w, r, u) {
		return
	}
	s.mu.Lock()
	var out []model.Article
	for id, at := range s.saved[u.id] {
		if a, ok := s.articles[id]; ok {
			a.SavedAt = model.Timestamp{Time: at}
			out = append(out, a)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt.Time) })
	writeJSON(w, http.StatusOK, append([]model.Article{}, out...))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsPath(w, r, u) {
		return
	}
	id := pathID(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("NewsArticle not found with id : '%d'", id))
		return
	}
	s.saveLocked(u.id, id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnsave(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsPath(w, r, u) {
		return
	}
	s.mu.Lock()
	delete(s.saved[u.id], pathID(r, "id"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsPath(w, r, u) {
		return
	}
	s.mu.Lock()
	p, ok := s.prefs[u.id]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("UserPreference not found with userId : '%d'", u.id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request, u *user) {
	if !s.ownsPath(w, r, u) {
		return
	}
	var p model.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}
	p.UserID, p.Username = u.id, u.username
	s.mu.Lock()
	s.prefs[u.id] = p
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) ownsPath(w http.ResponseWriter, r *http.Request, u *user) bool {
	if pathID(r, "userID") != u.id {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func (s *Server) ownsQuery(w http.ResponseWriter, r *http.Request, u *user) bool {
	id, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || id != u.id {
		writeMessage(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

func (s *Server) addUserLocked(username, email, password string) *user {
	u := &user{id: s.id(), username: username, email: email, password: password}
	s.users[username] = u
	return u
}

func (s *Server) saveLocked(userID, articleID int64) {
	if s.saved[userID] == nil {
		s.saved[userID] = make(map[int64]time.Time)
	}
	s.saved[userID][articleID] = s.now().UTC().Truncate(time.Second)
}

func (s *Server) categoryNameLocked(raw string) string {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ""
	}
	for _, c := range s.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return "\x00"
}

func (s *Server) sourceNameLocked(raw string) string {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ""
	}
	for _, src := range s.sources {
		if src.ID == id {
			return src.Name
		}
	}
	return "\x00"
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func sortArticles(list []model.Article, field, dir string) {
	desc := !strings.EqualFold(dir, model.SortAsc)
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		var cmp int
		if field == model.SortTitle {
			cmp = strings.Compare(a.Title, b.Title)
		} else {
			cmp = a.PublishedAt.Compare(b.PublishedAt.Time)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func pathID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"timestamp": time.Now().Format("2006-01-02T15:04:05"),
		"message":   message,
		"details":   "uri=/api",
	})
}

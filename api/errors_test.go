package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"message", `{"timestamp":"2024-01-01T10:00:00","message":"Bad credentials","details":"uri=/api/auth/login"}`, "Bad credentials"},
		{"validation map", `{"username":"Username is required","email":"Email should be valid"}`, "Email should be valid; Username is required"},
		{"spring default", `{"timestamp":"2024-01-01T10:00:00","status":500,"error":"Internal Server Error","path":"/api/x"}`, ""},
		{"not json", "<html>oops</html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseErrorBody([]byte(tt.body)))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	unauthorized := fmt.Errorf("wrapped: %w", &Error{StatusCode: http.StatusUnauthorized})
	forbidden := &Error{StatusCode: http.StatusForbidden, Message: "Access denied"}
	plain := errors.New("dial tcp: refused")

	assert.True(t, IsUnauthorized(unauthorized))
	assert.True(t, IsUnauthorized(forbidden))
	assert.False(t, IsUnauthorized(plain))
	assert.Equal(t, 0, StatusCode(plain))

	assert.Equal(t, "fallback", MessageOr(unauthorized, "fallback"))
	assert.Equal(t, "Access denied", MessageOr(forbidden, "fallback"))
	assert.Equal(t, "fallback", MessageOr(plain, "fallback"))

	assert.Equal(t, "403 Forbidden: Access denied", forbidden.Error())
	assert.Equal(t, "401 Unauthorized", (&Error{StatusCode: 401}).Error())
}

func TestPipeline(t *testing.T) {
	p := NewPipeline()
	assert.False(t, p.Active())

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer injected")
	p.Decorate(req)
	assert.Empty(t, req.Header.Get("Authorization"))

	e1 := p.Replace(BearerRule("one"))
	assert.True(t, p.Active())
	assert.Equal(t, e1, p.Decorate(req))
	assert.Equal(t, "Bearer one", req.Header.Get("Authorization"))

	e2 := p.Replace(BearerRule("two"))
	assert.Greater(t, e2, e1)
	p.Decorate(req)
	assert.Equal(t, []string{"Bearer two"}, req.Header.Values("Authorization"))

	e3 := p.Clear()
	assert.Greater(t, e3, e2)
	assert.Equal(t, e3, p.Epoch())
	p.Decorate(req)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestPipeline_ConcurrentReplace(t *testing.T) {
	p := NewPipeline()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p.Replace(BearerRule(fmt.Sprintf("t%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
			p.Decorate(req)
			assert.LessOrEqual(t, len(req.Header.Values("Authorization")), 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), p.Epoch())
}

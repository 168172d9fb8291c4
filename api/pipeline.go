package api

import (
	"net/http"
	"sync"
)

// Rule decorates an outgoing content-service request.
type Rule func(req *http.Request)

// BearerRule returns a Rule that attaches token as a bearer credential.
func BearerRule(token string) Rule {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Pipeline holds the single active request-decoration rule. Each Replace
// starts a new epoch; the previous rule stops applying in the same critical
// section that installs the next one.
type Pipeline struct {
	mu    sync.RWMutex
	rule  Rule
	epoch uint64
}

// NewPipeline returns a pipeline with no active rule.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Replace installs rule as the only active rule and returns the new epoch.
// A nil rule leaves requests undecorated.
func (p *Pipeline) Replace(rule Rule) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rule = rule
	p.epoch++
	return p.epoch
}

// Clear removes the active rule.
func (p *Pipeline) Clear() uint64 {
	return p.Replace(nil)
}

// Epoch returns the current rule generation.
func (p *Pipeline) Epoch() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.epoch
}

// Active reports whether a rule is installed.
func (p *Pipeline) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rule != nil
}

// Decorate strips any Authorization header from req and applies the active
// rule. It returns the epoch the request was decorated under.
func (p *Pipeline) Decorate(req *http.Request) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	req.Header.Del("Authorization")
	if p.rule != nil {
		p.rule(req)
	}
	return p.epoch
}

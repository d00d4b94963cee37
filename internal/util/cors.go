package util

import (
	"net/http"
	"regexp"
	"strings"
)

// CORSPolicy answers pre-flight requests and echoes back allow-listed
// origins. Unrecognized origins get no Access-Control-Allow-Origin header at
// all (default-deny); a wildcard is only ever used in local development via
// an explicit "*" entry.
type CORSPolicy struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
	allowAll bool
}

// NewCORSPolicy builds a policy from exact origins and origin regexes
// (e.g. a preview-deployment subdomain pattern).
func NewCORSPolicy(origins []string, patterns []string) (*CORSPolicy, error) {
	p := &CORSPolicy{exact: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			p.allowAll = true
			continue
		}
		p.exact[origin] = struct{}{}
	}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Allowed reports whether the origin may access the API.
func (p *CORSPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAll {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// Middleware wraps a handler with CORS headers and pre-flight handling.
func (p *CORSPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if p.Allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

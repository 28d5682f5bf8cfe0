// Package security provides origin validation for the HTTP and
// WebSocket surfaces.
package security

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates WebSocket and CORS origins.
type OriginChecker struct {
	allowedOrigins    []string
	bindLocalhostOnly bool
}

// NewOriginChecker creates an origin checker. With no allowed origins
// and bindLocalhostOnly set, only localhost origins pass; with neither
// configured every origin passes.
func NewOriginChecker(allowedOrigins []string, bindLocalhostOnly bool) *OriginChecker {
	return &OriginChecker{
		allowedOrigins:    allowedOrigins,
		bindLocalhostOnly: bindLocalhostOnly,
	}
}

// CheckOrigin validates the Origin header of a request. A missing
// header is a same-origin request and always passes.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	return oc.CheckOriginValue(r.Header.Get("Origin"))
}

// CheckOriginValue validates one origin string.
func (oc *OriginChecker) CheckOriginValue(origin string) bool {
	if origin == "" {
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsedOrigin.Hostname()

	if oc.bindLocalhostOnly && isLocalhost(originHost) {
		return true
	}

	for _, allowed := range oc.allowedOrigins {
		if matchOrigin(origin, allowed) {
			return true
		}
	}

	if len(oc.allowedOrigins) == 0 && oc.bindLocalhostOnly {
		return false
	}
	if len(oc.allowedOrigins) == 0 {
		return true
	}
	return false
}

func isLocalhost(host string) bool {
	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}

// matchOrigin checks one origin against an allowed pattern: exact
// match, or wildcard subdomain matching for "*.example.com" patterns.
func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if strings.HasPrefix(allowed, "*.") {
		domain := allowed[2:]
		originHost := parsedOrigin.Hostname()
		if strings.HasSuffix(originHost, "."+domain) || originHost == domain {
			return true
		}
	}

	return false
}

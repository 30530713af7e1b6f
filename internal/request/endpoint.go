package request

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/ratelimit"
)

// EndpointLimiter associates a rate limiter with a specific HTTP endpoint
// pattern, for remote APIs that enforce per-route limits on top of a global
// one.
type EndpointLimiter struct {
	method  string         // HTTP method or "*" for any
	pattern *regexp.Regexp // matched against the request URL path
	limiter ratelimit.Limiter
}

// Matches checks if a request matches this endpoint limiter's criteria.
func (e *EndpointLimiter) Matches(req *http.Request) bool {
	if e.method != "*" && req.Method != e.method {
		return false
	}
	return e.pattern.MatchString(req.URL.Path)
}

// EndpointLimiterRegistry manages multiple endpoint-specific rate limiters.
type EndpointLimiterRegistry struct {
	limiters []*EndpointLimiter
}

func NewEndpointLimiterRegistry() *EndpointLimiterRegistry {
	return &EndpointLimiterRegistry{
		limiters: make([]*EndpointLimiter, 0),
	}
}

// Register adds a new endpoint limiter to the registry.
func (r *EndpointLimiterRegistry) Register(method, pattern string, limiter ratelimit.Limiter) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling endpoint pattern %q: %w", pattern, err)
	}

	r.limiters = append(r.limiters, &EndpointLimiter{
		method:  strings.ToUpper(method),
		pattern: regex,
		limiter: limiter,
	})
	return nil
}

// GetLimiter returns the limiter of the first matching endpoint, or nil.
func (r *EndpointLimiterRegistry) GetLimiter(req *http.Request) ratelimit.Limiter {
	for _, el := range r.limiters {
		if el.Matches(req) {
			return el.limiter
		}
	}
	return nil
}

// Size returns the number of registered endpoint limiters.
func (r *EndpointLimiterRegistry) Size() int {
	return len(r.limiters)
}

package server

import "net/http"

// originFilter is an exact-match allow-list for the Origin header of
// browser clients. Requests without an Origin header are always allowed.
type originFilter struct {
	allowed map[string]struct{}
}

func newOriginFilter(origins []string) originFilter {
	f := originFilter{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		f.allowed[o] = struct{}{}
	}
	return f
}

func (f originFilter) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := f.allowed[origin]
	return ok
}

func (f originFilter) checkRequest(r *http.Request) bool {
	return f.Allowed(r.Header.Get("Origin"))
}

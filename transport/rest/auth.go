package rest

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authorizer decides whether a request may reach an administrative
// endpoint. It is injected from the outside; nothing below the transport
// layer knows how administration is authenticated.
type Authorizer func(r *http.Request) bool

// BearerTokenAuthorizer gates admin endpoints on a shared bearer token. An
// empty token locks the endpoints entirely rather than leaving them open.
func BearerTokenAuthorizer(token string) Authorizer {
	return func(r *http.Request) bool {
		if token == "" {
			return false
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return false
		}

		return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
	}
}

func (that *Server) requireAuthorization(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !that.authorize(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r)
	}
}

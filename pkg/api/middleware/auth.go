package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/recallkit/recall/pkg/api/response"
)

// JobTokenHeader is the alternative to a bearer token.
const JobTokenHeader = "X-JOB-TOKEN"

// TokenAuth rejects requests that do not present the shared secret, either
// as "Authorization: Bearer <token>" or in X-JOB-TOKEN. token is read on
// every request so rotations apply immediately; an empty secret rejects
// everything.
func TokenAuth(token func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(presentedToken(r), token()) {
				response.Error(w,
					http.StatusUnauthorized,
					response.ErrCodeUnauthorized,
					"Unauthorized",
					requestIDOrUnknown(r),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, value, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(r.Header.Get(JobTokenHeader))
}

func tokenMatches(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

package auth

import (
	"net/http"
)

const (
	userHeader     = "X-User"
	usernameHeader = "X-User-Name"
)

// Identity trusts the X-User header set by the upstream auth proxy and puts
// the resulting User on the request context. Requests without an identity are
// rejected; actual authentication is the proxy's job.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			http.Error(w, "missing user identity", http.StatusUnauthorized)
			return
		}

		user := User{
			ID:       userID,
			Username: r.Header.Get(usernameHeader),
		}
		if user.Username == "" {
			user.Username = userID
		}

		next.ServeHTTP(w, r.WithContext(NewUserContext(r.Context(), user)))
	})
}

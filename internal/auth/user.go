package auth

import (
	"context"
)

type userKeyType struct{}

var (
	userKey userKeyType
)

// User is the authenticated identity handed over by the outer HTTP/auth
// layer. Session issuance and token verification live outside this service.
type User struct {
	ID       string
	Username string
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

// MustHaveUser returns the user from the context and panics if there is none.
// Handlers run behind the identity middleware, so a missing user is a wiring
// bug, not a request error.
func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		panic("no user found in context")
	}
	return user
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

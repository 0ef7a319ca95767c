package claims

import (
	"context"
	"errors"
)

type Claims struct {
	UserID      string
	Username    string
	Email       string
	EdxUsername string
}

// LMSUser is the identifier enrollment calls are made with: the LMS account
// name when one was registered at signup, the local username otherwise.
func (c Claims) LMSUser() string {
	if c.EdxUsername != "" {
		return c.EdxUsername
	}
	return c.Username
}

type ctxKey int

const claimsKey ctxKey = 1

func Set(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func Get(ctx context.Context) (Claims, error) {
	v, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return Claims{}, errors.New("claim value missing from context")
	}
	return v, nil
}

func IsUser(ctx context.Context, id string) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.UserID == id
}

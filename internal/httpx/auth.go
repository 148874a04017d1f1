package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const RoleAdmin = "admin"

// Claims carried by access tokens.
type Claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func UserFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

// Auth verifies HS256 bearer tokens.
type Auth struct {
	Secret []byte
}

func (a *Auth) Parse(tokenStr string) (Claims, error) {
	if len(a.Secret) == 0 {
		return Claims{}, fmt.Errorf("JWT secret not configured")
	}
	var c Claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("invalid or expired token")
	}
	if c.ID == "" {
		return Claims{}, fmt.Errorf("token has no subject")
	}
	return c, nil
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || tok == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		c, err := a.Parse(tok)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c)))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := UserFrom(r.Context()); !ok || c.Role != RoleAdmin {
			writeMessage(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/models"
	"l3v3l_server/utils"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer token claims. Subject is the username.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Username string
	Role     string
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	Now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), Now: time.Now}
}

func (a *Authenticator) IssueToken(username, role string, ttl time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}
	if role == "" {
		role = models.RoleUser
	}
	now := a.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token. Expired tokens are errs.AuthExpired, anything else
// that fails is errs.Unauthorized.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.Now), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, errs.Wrap(errs.AuthExpired, "token expired", err)
	}
	if err != nil || !token.Valid {
		return nil, errs.Wrap(errs.Unauthorized, "invalid token", err)
	}
	if claims.Subject == "" {
		return nil, errs.New(errs.Unauthorized, "token has no subject")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// Principal on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			utils.WriteError(w, r, errs.New(errs.Unauthorized, "authorization header required"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			utils.WriteError(w, r, errs.New(errs.Unauthorized, "invalid authorization format"))
			return
		}
		claims, err := a.Verify(parts[1])
		if err != nil {
			utils.WriteError(w, r, err)
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{Username: claims.Subject, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authorize allows the caller to act as username only if it is them or an admin.
func Authorize(ctx context.Context, username string) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return errs.New(errs.Unauthorized, "not authenticated")
	}
	if p.IsAdmin() || p.Username == username {
		return nil
	}
	return errs.Forbiddenf("cannot act on behalf of " + username)
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			utils.WriteError(w, r, errs.New(errs.Unauthorized, "not authenticated"))
			return
		}
		if !p.IsAdmin() {
			utils.WriteError(w, r, errs.Forbiddenf("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

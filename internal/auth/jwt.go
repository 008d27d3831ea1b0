// Package auth issues and checks the bearer tokens that identify API users.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	interrors "github.com/streed/notesai/internal/errors"
	"github.com/streed/notesai/internal/logger"
)

const issuer = "notesai"

// Authenticator signs and validates HS256 tokens whose subject is a user id.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt_secret (or NOTESAI_JWT_SECRET) is required", interrors.ErrMissingCredential)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a signed token for userID.
func (a *Authenticator) Issue(userID int) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(a.ttl)
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(strconv.Itoa(userID)).
		IssuedAt(now).
		Expiration(exp).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), exp, nil
}

// Verify checks signature, issuer and expiry and returns the user id.
func (a *Authenticator) Verify(token string) (int, error) {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, a.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid token: %v", interrors.ErrUnauthorized, err)
	}
	id, err := strconv.Atoi(tok.Subject())
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject", interrors.ErrUnauthorized)
	}
	return id, nil
}

type contextKey string

const userIDContextKey contextKey = "user_id"

// WithUserID stores the authenticated user on ctx.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserID returns the authenticated user stored on ctx.
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(userIDContextKey).(int)
	return id, ok
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "missing Authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			unauthorized(w, "invalid Authorization format, expected: Bearer <token>")
			return
		}

		userID, err := a.Verify(token)
		if err != nil {
			logger.Debug("Rejected token for %s %s: %v", r.Method, r.URL.Path, err)
			unauthorized(w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="notesai"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}

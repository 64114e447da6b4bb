package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ventiglobe/ventiglobe/internal/api/models"
	"github.com/ventiglobe/ventiglobe/internal/auth"
)

// operatorKey is the context key for the authenticated operator.
type operatorKey struct{}

// TokenValidator validates operator bearer tokens. *auth.JWTService
// implements it.
type TokenValidator interface {
	ValidateOperator(token string) (*auth.Claims, error)
}

// Operator requires a bearer token carrying the operator role. A missing or
// invalid token yields 401; a valid token without the role yields 403.
func Operator(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}

			const prefix = "Bearer "
			if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				writeAuthProblem(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}
			token := strings.TrimSpace(header[len(prefix):])
			if token == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := validator.ValidateOperator(token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrForbidden):
				writeAuthProblem(w, r, http.StatusForbidden, "operator role required")
				return
			case errors.Is(err, auth.ErrTokenExpired):
				writeAuthProblem(w, r, http.StatusUnauthorized, "token has expired")
				return
			case errors.Is(err, auth.ErrNoSigningKey):
				writeAuthProblem(w, r, http.StatusUnauthorized, "admin API is not configured")
				return
			default:
				writeAuthProblem(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthProblem writes the problem directly; the response package
// imports middleware.
func writeAuthProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	if status == http.StatusForbidden {
		problem = models.NewForbidden(traceID, detail)
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetOperator returns the authenticated operator's name, or "".
func GetOperator(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok {
		return op
	}
	return ""
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"bastion/internal/platform/token"
)

// OperatorValidator verifies an operator bearer token.
type OperatorValidator interface {
	Validate(tokenString string) (*token.OperatorClaims, error)
}

type operatorKey struct{}

// GetOperatorID retrieves the authenticated operator from the context.
func GetOperatorID(ctx context.Context) string {
	if id, ok := ctx.Value(operatorKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireOperator enforces a valid operator bearer token on the wrapped
// routes and stores the operator id in the request context. Missing or
// invalid tokens get a 401 without reaching the handler.
func RequireOperator(validator OperatorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w)
				return
			}
			claims, err := validator.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.Warn("operator token rejected",
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), operatorKey{}, claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}

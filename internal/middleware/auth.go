package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=auth_mocks_test.go -package=middleware_test

// TokenChecker resolves a bearer token to the id of the admin it was issued to.
type TokenChecker interface {
	CheckToken(ctx context.Context, token string) (subject string, err error)
}

type subjectCtxKey struct{}

// SubjectFromContext returns the admin id BearerAuth put in the request context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectCtxKey{}).(string)
	return subject, ok && subject != ""
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[len("Bearer "):])
}

// BearerAuth rejects requests without a valid bearer token with 401, which is
// the signal the admin client reacts to by expiring its session.
func BearerAuth(checker TokenChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			token := BearerToken(r)
			if token == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				writeUnauthorized(w, "Authentication required")
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			}

			subject, err := checker.CheckToken(ctx, token)
			if err != nil {
				log.Tracef("[invalid token] [auth middleware] unauthorized => %s: %s", r.URL.Path, err)
				writeUnauthorized(w, "Invalid token")
				span.SetStatus(codes.Error, "invalid-token")
				span.RecordError(err)
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, subjectCtxKey{}, subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	pkg.WriteJSONResponse(w, http.StatusUnauthorized, map[string]any{
		"success": false,
		"message": message,
	})
}

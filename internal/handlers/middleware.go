package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aurum-chit/chitfund-backend/internal/apperr"
	"github.com/aurum-chit/chitfund-backend/internal/auth"
	"github.com/aurum-chit/chitfund-backend/internal/models"
)

type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (auth.Principal, error)
}

type Middleware struct {
	resolver PrincipalResolver
	logger   *zap.Logger
}

func NewMiddleware(resolver PrincipalResolver, logger *zap.Logger) *Middleware {
	return &Middleware{resolver: resolver, logger: logger}
}

// Protect requires a bearer token and stores the resolved Principal in the
// request context.
func (m *Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		principal, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, m.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// Require admits only principals of the given role. It must run after Protect.
func (m *Middleware) Require(role string) func(http.Handler) http.Handler {
	message := "Not authorized as a " + role
	if role == models.RoleAdmin {
		message = "Not authorized as an admin"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok || p.Role() != role {
				writeError(w, m.logger, apperr.Auth("%s", message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func principalFrom(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

package web

import (
	"context"
	"net/http"
	"time"

	"telegram-relay/internal/infra/logger"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requesterCookieName = "relay_login"

type requesterKey struct{}

// requesterMiddleware выдаёт посетителю формы идентификатор в cookie.
// По нему login.Flow хранит незавершённую попытку входа.
func (s *Server) requesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(requesterCookieName); err == nil {
			if parsed, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		http.SetCookie(w, &http.Cookie{
			Name:     requesterCookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int(s.ttl / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requesterKey{}, id)))
	})
}

func requesterFrom(ctx context.Context) string {
	id, _ := ctx.Value(requesterKey{}).(string)
	return id
}

// loggingMiddleware логирует все запросы
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

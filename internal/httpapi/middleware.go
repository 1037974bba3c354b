package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/auth"
	"github.com/dmitrijs2005/audiodesc/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// tokenFrom reads a bearer token. Browsers cannot set headers on a
// websocket handshake, so the access_token query parameter is accepted
// there.
func tokenFrom(r *http.Request, allowQuery bool) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if strings.HasPrefix(h, common.BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func (s *Server) authenticate(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFrom(r, allowQuery)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "missing token")
				return
			}

			userID, err := auth.UserIDFromToken(token, s.jwtSecret)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, common.ErrTokenExpired) {
					msg = "token expired"
				}
				respondError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs one line per request through the service logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Info(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

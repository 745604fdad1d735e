package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkarpov/go-list-sync/internal/logger"
)

var (
	errEmptyAuthorizationHeader   = errors.New("empty authorization header")
	errInvalidAuthorizationHeader = errors.New("invalid authorization header")
)

type ctxKey int

const clientIDCtxKey ctxKey = iota

// clientIDFromContext returns the client id the auth middleware extracted
// from the bearer token.
func clientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDCtxKey).(string)
	return id
}

// auth enforces bearer-token authentication. Expired tokens are rejected
// with 401 so clients exercise their credential-refresh path.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromRequest(r)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Err(errEmptyAuthorizationHeader).Send()
			http.Error(w, errEmptyAuthorizationHeader.Error(), http.StatusUnauthorized)
			return
		}

		tokenString, err := tokenFromAuthHeader(authHeader)
		if err != nil {
			log.Err(err).Send()
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.signKey, nil
		})
		if err != nil {
			log.Err(err).Msg("token rejected")
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		sub, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), clientIDCtxKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.logger.WithContext(r.Context())
		log := logger.FromContext(ctx)

		start := time.Now()
		lw := &responseWriter{ResponseWriter: w}

		next.ServeHTTP(lw, r.WithContext(ctx))

		log.Info().
			Str("uri", r.RequestURI).
			Str("method", r.Method).
			Int("status", lw.status).
			Dur("duration", time.Since(start)).
			Send()
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func tokenFromAuthHeader(value string) (string, error) {
	parts := strings.Split(strings.TrimSpace(value), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errInvalidAuthorizationHeader
	}
	return parts[1], nil
}

package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the chi router for the reference server.
func (s *Server) Routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.withLogging)

	// session issuing needs no credential: the dev server trusts client ids
	router.Post("/api/session", s.session)

	router.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/api/sync/submit", s.submit)
		r.Post("/api/sync/fetch", s.fetchHandler)
	})

	return router
}

// ListenAndServe runs the reference server until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Routes())
}

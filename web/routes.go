/* routes.go
 * Contains the router, the JWT authentication middleware and the request logger
 * Authors: Zachary Bower
 */

package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// NewServer creates the server from the configuration
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		api:     cfg.API,
		secret:  []byte(cfg.JWTSecret),
		origins: origins,
		logger:  logger.Named("web"),
	}
}

// Routes builds the HTTP handler
// Preconditions: The server has an api
// Postconditions: Returns the router with the public, player and admin routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", s.DraftWebsocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/draft", s.GetDraft)
		r.Get("/match", s.GetMatch)
		r.Get("/match-config", s.GetMatchConfig)

		// Player routes
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/queue/join", s.JoinQueue)
			r.Post("/queue/leave", s.LeaveQueue)
			r.Post("/draft/pick", s.PickPlayer)
			r.Post("/draft/ban", s.BanMap)
			r.Post("/draft/finalize", s.RequestFinalize)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/admin/cancel", s.Cancel)
				r.Post("/admin/publish", s.Publish)
				r.Post("/admin/start", s.Start)
			})
		})
	})
	return r
}

// Healthz reports that the process is serving
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// authenticate verifies the bearer token and stores its claims on the request context
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			s.logger.Debug("rejected token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	})
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("no jwt secret configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.Admin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the claims authenticate stored on the context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

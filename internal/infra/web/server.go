package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"course-tokens/internal/infra/logging"
	"course-tokens/internal/infra/metrics"
	"course-tokens/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter gates the redemption endpoint per actor. A nil limiter
// disables the gate.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	tokenUC   usecase.TokenUseCase
	redeemUC  usecase.RedemptionUseCase
	statusUC  usecase.StatusUseCase
	auth      *AuthManager
	limiter   RateLimiter
	rateLimit int
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	tokenUC usecase.TokenUseCase,
	redeemUC usecase.RedemptionUseCase,
	statusUC usecase.StatusUseCase,
	auth *AuthManager,
	limiter RateLimiter,
	rateLimit int,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		tokenUC:   tokenUC,
		redeemUC:  redeemUC,
		statusUC:  statusUC,
		auth:      auth,
		limiter:   limiter,
		rateLimit: rateLimit,
		apiKey:    apiKey,
		log:       logger,
	}
}

// Handler builds the full route tree. The admin surface (issue, void,
// unvoid, unenrol, list) runs on the shared API key; the learner surface
// (redeem, status) runs on actor bearer tokens.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)
			r.Post("/tokens", s.createTokens)
			r.Get("/tokens", s.listTokens)
			r.Post("/tokens/{id}/void", s.voidToken)
			r.Post("/tokens/{id}/unvoid", s.unvoidToken)
			r.Post("/tokens/{id}/unenrol", s.unenrolToken)
			r.Post("/accounts/resend-welcome", s.resendWelcome)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.actorMiddleware)
			r.Post("/tokens/redeem", s.redeemToken)
			r.Get("/tokens/{id}/status", s.tokenStatus)
		})
	})
	return r
}

// observe records route/status counts once the handler finishes.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, strconv.Itoa(ww.Status()/100*100))
	})
}

// apiKeyMiddleware is simple Bearer authentication for the admin surface.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type ctxKeyActor struct{}

// actorMiddleware authenticates the learner surface and stores the actor ID
// in the request context.
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyActor{}, claims.Subject)
		ctx = logging.WithActorID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyActor{}).(string)
	return id
}

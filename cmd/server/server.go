package server

import (
	"context"
	"net/http"
	"time"

	"example.com/conduit/internal/auth"
	appkafka "example.com/conduit/internal/broker"
	"example.com/conduit/internal/logger"
	"example.com/conduit/internal/middleware"
	"example.com/conduit/internal/monitoring"
	"example.com/conduit/internal/tags"
	"example.com/conduit/internal/users"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	users       *users.Repo
	tags        *tags.Repo
	tokens      *auth.Tokens
	kafkaWriter appkafka.KafkaWriter
}

// Options controls the listener.
type Options struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string
}

var logg = logger.New()

func New(u *users.Repo, t *tags.Repo, tokens *auth.Tokens, writer appkafka.KafkaWriter) *Server {
	return &Server{
		users:       u,
		tags:        t,
		tokens:      tokens,
		kafkaWriter: writer,
	}
}

// Routes builds the router. Endpoints that act as a user go through JWTAuth.
func (s *Server) Routes() http.Handler {
	jwtAuth := middleware.JWTAuth(s.tokens)

	r := mux.NewRouter()
	r.Use(monitoring.Middleware)

	// Public endpoints
	r.HandleFunc("/users", s.createUserHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/login", s.loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/followers", s.getFollowersHandler).Methods(http.MethodGet)
	r.HandleFunc("/tags", s.listTagsHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Protected endpoints with JWT authentication middleware
	r.Handle("/user", jwtAuth(http.HandlerFunc(s.currentUserHandler))).Methods(http.MethodGet)
	r.Handle("/user", jwtAuth(http.HandlerFunc(s.updateUserHandler))).Methods(http.MethodPut)
	r.Handle("/follow", jwtAuth(http.HandlerFunc(s.followHandler))).Methods(http.MethodPost)
	r.Handle("/tags", jwtAuth(http.HandlerFunc(s.createTagHandler))).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. TLS is used
// when both certificate and key are configured.
func Run(ctx context.Context, s *Server, opts Options) {
	monitoring.Register()

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if opts.TLSCertFile != "" && opts.TLSKeyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+opts.Addr)
			err = srv.ListenAndServeTLS(opts.TLSCertFile, opts.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+opts.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}

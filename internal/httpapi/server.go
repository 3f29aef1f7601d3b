package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/campus-dispatch/internal/auth"
	"github.com/example/campus-dispatch/internal/lifecycle"
	"github.com/example/campus-dispatch/internal/location"
	"github.com/example/campus-dispatch/internal/rating"
	"github.com/example/campus-dispatch/internal/realtime"
	"github.com/example/campus-dispatch/internal/storage"
)

type Server struct {
	engine   *lifecycle.Engine
	location *location.Service
	ratings  *rating.Service
	auth     *auth.Service
	verifier auth.Verifier
	hub      *realtime.Hub
	store    storage.Store
	logger   *slog.Logger
	mux      *mux.Router
}

type Deps struct {
	Engine   *lifecycle.Engine
	Location *location.Service
	Ratings  *rating.Service
	Auth     *auth.Service
	Verifier auth.Verifier
	Hub      *realtime.Hub
	Store    storage.Store
	Logger   *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		engine:   d.Engine,
		location: d.Location,
		ratings:  d.Ratings,
		auth:     d.Auth,
		verifier: d.Verifier,
		hub:      d.Hub,
		store:    d.Store,
		logger:   d.Logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	s.mux.HandleFunc("/api/v1/auth/verify", s.handleVerify).Methods("POST")

	s.mux.HandleFunc("/api/v1/orders", s.requireAuth(s.handleRequest)).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/available", s.requireAuth(s.handleListAvailable)).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}", s.requireAuth(s.handleGetOrder)).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/accept", s.requireAuth(s.handleAccept)).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/status", s.requireAuth(s.handleAdvance)).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/cancel", s.requireAuth(s.handleCancel)).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/history", s.requireAuth(s.handleHistory)).Methods("GET")

	s.mux.HandleFunc("/api/v1/orders/{id}/location", s.requireAuth(s.handleRecordLocation)).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/location", s.requireAuth(s.handleLatestLocation)).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/location/history", s.requireAuth(s.handleLocationHistory)).Methods("GET")

	s.mux.HandleFunc("/api/v1/orders/{id}/rating", s.requireAuth(s.handleRate)).Methods("POST")

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

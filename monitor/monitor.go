// Package monitor serves the discovery documents and Prometheus metrics of a
// responder over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bamgoo/responder"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout = 5 * time.Second
)

var (
	errServerNotOpened = errors.New("monitor is not opened")
)

type Server struct {
	mutex     sync.Mutex
	config    responder.MonitorConfig
	discovery *responder.Discovery
	registry  *prometheus.Registry
	logger    *slog.Logger

	router *mux.Router
	server *http.Server
	addr   string
}

// New creates a monitor for the responder. Open must be called before
// Handler or Start.
func New(config responder.MonitorConfig, r *responder.Responder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(r.Stats()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		config:    config,
		discovery: r.Discovery(),
		registry:  registry,
		logger:    logger.With("module", "monitor"),
	}
}

func (s *Server) Open() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.router != nil {
		return nil
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet).Name("health")
	s.router.HandleFunc("/ping", s.ping).Methods(http.MethodGet).Name("ping")
	s.router.HandleFunc("/info", s.info).Methods(http.MethodGet).Name("info")
	s.router.HandleFunc("/stats", s.stats).Methods(http.MethodGet).Name("stats")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      s.router,
	}
	return nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.router
}

// Start binds the listen address and serves in the background. A bind
// failure is returned to the caller.
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.server == nil {
		return errServerNotOpened
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.server.Addr, err)
	}
	s.addr = listener.Addr().String()

	server := s.server
	go func() {
		s.logger.Info("monitor listening", "addr", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.addr
}

func (s *Server) Stop() error {
	return nil
}

func (s *Server) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.router = nil
	s.addr = ""
	return err
}

func (s *Server) health(res http.ResponseWriter, _ *http.Request) {
	s.write(res, map[string]string{"status": "ok"})
}

func (s *Server) ping(res http.ResponseWriter, _ *http.Request) {
	s.write(res, s.discovery.Ping())
}

func (s *Server) info(res http.ResponseWriter, _ *http.Request) {
	s.write(res, s.discovery.Info())
}

func (s *Server) stats(res http.ResponseWriter, _ *http.Request) {
	s.write(res, s.discovery.Stats())
}

func (s *Server) write(res http.ResponseWriter, doc any) {
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("encode monitor response", "error", err)
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	res.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = res.Write(data)
}

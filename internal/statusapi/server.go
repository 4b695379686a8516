package statusapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/syserr"
	"go.uber.org/zap"
)

const (
	// DefaultStatsInterval is how often stats frames go to event clients.
	DefaultStatsInterval = time.Second

	// RequestTimeout bounds a single non-websocket request.
	RequestTimeout = 10 * time.Second

	// ShutdownTimeout bounds Shutdown when the caller's context has none.
	ShutdownTimeout = 5 * time.Second
)

// Config holds status API settings.
type Config struct {
	// Listen is the TCP address to serve on (e.g. ":8080").
	Listen string

	// StatsInterval is the period of stats frames on /api/events.
	StatsInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Server is the status API HTTP server.
type Server struct {
	cfg     Config
	station Station
	bridge  Bridge
	hub     *hub
	log     *zap.Logger

	mu          sync.Mutex
	httpServer  *http.Server
	listener    net.Listener
	unsubscribe func()
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New creates a status API server. It does not listen until Start.
func New(cfg Config, st Station, br Bridge) (*Server, error) {
	if st == nil || br == nil {
		return nil, syserr.InvalidArgument("statusapi.new", "station and bridge are required")
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := logging.Component("statusapi")
	return &Server{
		cfg:     cfg,
		station: st,
		bridge:  br,
		hub:     newHub(log),
		log:     log,
	}, nil
}

func (s *Server) now() time.Time { return s.cfg.Now() }

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(recoverJSON(s.log))
	r.Use(requestLogger)

	r.Get("/healthz", s.health)
	r.Route("/api", func(api chi.Router) {
		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(RequestTimeout))
			api.Get("/status", s.status)
			api.Get("/stats", s.stats)
			api.Post("/stats/reset", s.resetStats)
			api.Get("/records", s.records)
			api.Post("/scan", s.startScan)
			api.Get("/scan", s.scanResult)
		})
		api.Get("/events", s.events)
	})
	return r
}

// Start listens on the configured address and begins serving.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return syserr.InvalidState("statusapi.start", "already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.stop = make(chan struct{})
	s.unsubscribe = s.station.Subscribe(s.publishWifi)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status API stopped", zap.Error(err))
		}
	}()
	go s.statsLoop(s.stop)

	s.log.Info("Status API listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the listening address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops serving, closes every event client and waits for the
// server goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	if srv == nil {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = nil
	s.listener = nil
	close(s.stop)
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	unsubscribe()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ShutdownTimeout)
		defer cancel()
	}

	// Hijacked websocket connections are not tracked by http.Server.
	s.hub.closeAll()
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	s.log.Info("Status API stopped")
	return err
}

// GetActiveConnections returns the number of connected event clients.
func (s *Server) GetActiveConnections() int {
	return s.hub.count()
}

func (s *Server) statsLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.hub.count() == 0 {
				continue
			}
			s.hub.broadcast(s.statsFrame())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

func recoverJSON(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.Error("Panic in handler",
						zap.Any("panic", recovered),
						zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "FAIL", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

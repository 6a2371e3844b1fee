package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/g960059/hostkeep/internal/api"
	"github.com/g960059/hostkeep/internal/config"
	"github.com/g960059/hostkeep/internal/db"
	"github.com/g960059/hostkeep/internal/logging"
	"github.com/g960059/hostkeep/internal/metrics"
	"github.com/g960059/hostkeep/internal/model"
)

const maxRequestBody = 1 << 20

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	store       *db.Store
	logger      *zap.Logger
	mu          sync.Mutex
	listMu      sync.Mutex
	listLocks   map[string]*listLockEntry
	shutdown    sync.Once
	shutdownErr error
}

type listLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewServer(cfg config.Config, logger *zap.Logger) *Server {
	return NewServerWithDeps(cfg, nil, logger)
}

// NewServerWithDeps serves only /v1/health (and /metrics) when store is nil.
func NewServerWithDeps(cfg config.Config, store *db.Store, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:       cfg,
		store:     store,
		logger:    logging.OrNop(logger).Named(logging.ComponentDaemon),
		listLocks: map[string]*listLockEntry{},
	}
	s.httpSrv = &http.Server{
		Handler:           s.instrument(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mux.HandleFunc("/v1/health", s.healthHandler)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	if store != nil {
		mux.HandleFunc("/v1/properties", s.propertiesHandler)
		mux.HandleFunc("/v1/properties/", s.propertyRouteHandler)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock()
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("listening", zap.String("socket", s.cfg.SocketPath))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
		s.logger.Info("stopped", zap.Error(s.shutdownErr))
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
	}
	if s.store != nil {
		props, err := s.store.ListProperties(r.Context())
		if err != nil {
			s.logger.Warn("health: list properties", zap.Error(err))
			resp.Status = "degraded"
		}
		resp.Properties = len(props)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// lockList serializes position batches per property list. Entries are
// dropped once nobody holds or waits for them.
func (s *Server) lockList(key string) func() {
	s.listMu.Lock()
	entry, ok := s.listLocks[key]
	if !ok {
		entry = &listLockEntry{}
		s.listLocks[key] = entry
	}
	entry.refs++
	s.listMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.listMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.listLocks, key)
		}
		s.listMu.Unlock()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := routeLabel(r.URL.Path)
		metrics.HTTPRequest(route, r.Method, rec.status)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(started)))
	})
}

// routeLabel maps a request path to its route template so ids never become
// metric labels.
func routeLabel(path string) string {
	switch path {
	case "/v1/health", "/metrics", "/v1/properties":
		return path
	}
	tail := strings.TrimPrefix(path, "/v1/properties/")
	if tail == path {
		return "other"
	}
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	switch len(parts) {
	case 1:
		return "/v1/properties/{id}"
	case 2:
		return "/v1/properties/{id}/" + kindLabel(parts[1])
	case 3:
		if parts[1] == string(model.KindChecklist) && parts[2] == "positions" {
			return "/v1/properties/{id}/checklist/positions"
		}
		return "/v1/properties/{id}/" + kindLabel(parts[1]) + "/{item}"
	default:
		return "other"
	}
}

func kindLabel(raw string) string {
	if k, err := model.ParseItemKind(raw); err == nil {
		return string(k)
	}
	return "{unknown}"
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	resp := api.ErrorResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    code,
			Message: msg,
		},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	s.writeError(w, http.StatusMethodNotAllowed, model.ErrRefInvalid, "method not allowed")
}

func (s *Server) writeStoreError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeError(w, http.StatusNotFound, model.ErrRefNotFound, what+" not found")
	case errors.Is(err, db.ErrDuplicate):
		s.writeError(w, http.StatusConflict, model.ErrConflict, what+" already exists")
	case errors.Is(err, db.ErrInvalid):
		s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, err.Error())
	default:
		s.logger.Error("store failure", zap.String("resource", what), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, model.ErrPreconditionFailed, "failed to access "+what)
	}
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

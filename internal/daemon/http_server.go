package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"camrelay/internal/config"
	"camrelay/internal/logging"
	"camrelay/internal/services"
)

type httpServer struct {
	logger   *slog.Logger
	daemon   *Daemon
	listener net.Listener
	server   *http.Server
}

// statusPayload is the JSON body served at /api/status.
type statusPayload struct {
	Running        bool       `json:"running"`
	RunID          string     `json:"run_id"`
	Cycles         int        `json:"cycles"`
	Delivered      int        `json:"delivered"`
	LastError      string     `json:"last_error,omitempty"`
	LastCycle      cycleState `json:"last_cycle"`
	LedgerPath     string     `json:"ledger_path"`
	LockFilePath   string     `json:"lock_file_path"`
	WorkflowActive bool       `json:"workflow_active"`
}

type cycleState struct {
	Result    string    `json:"result,omitempty"`
	Listed    int       `json:"listed"`
	Pending   int       `json:"pending"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Finished  time.Time `json:"finished,omitzero"`
}

// newHTTPServer binds metrics.bind. It returns nil when no address is set.
func newHTTPServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*httpServer, error) {
	bind := strings.TrimSpace(cfg.Metrics.Bind)
	if bind == "" {
		return nil, nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "listen", bind, err)
	}

	srv := &httpServer{logger: logger, daemon: d, listener: listener}
	mux := http.NewServeMux()
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics.Handler())
	}
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *httpServer) addr() string {
	return s.listener.Addr().String()
}

// serve blocks until ctx ends, then shuts the server down.
func (s *httpServer) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()
	s.logger.Info("http server listening",
		logging.String(logging.FieldEventType, "http_listening"),
		logging.String("address", s.addr()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Debug("http server shutdown", logging.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	last := status.Workflow.LastCycle
	s.writeJSON(w, http.StatusOK, statusPayload{
		Running:        status.Running,
		RunID:          status.Workflow.RunID,
		Cycles:         status.Workflow.Cycles,
		Delivered:      status.Delivered,
		LastError:      status.Workflow.LastError,
		LedgerPath:     status.LedgerPath,
		LockFilePath:   status.LockFilePath,
		WorkflowActive: status.Workflow.Running,
		LastCycle: cycleState{
			Result:    string(last.Result),
			Listed:    last.Listed,
			Pending:   last.Pending,
			Delivered: last.Delivered,
			Failed:    last.Failed,
			Finished:  last.Finished,
		},
	})
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("encode response", logging.Error(err))
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

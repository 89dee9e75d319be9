// ABOUTME: WebSocket transport that connects observers to the orchestrator and hub
// ABOUTME: Inbound frames become tagged events; hub payloads are pushed to every socket

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/symphonylabs/symphony/internal/hub"
	"github.com/symphonylabs/symphony/internal/orchestrator"
)

// Server accepts observer connections, decodes their JSON messages into
// orchestrator events, and pumps hub broadcasts back out to every socket.
type Server struct {
	addr         string
	orchestrator *orchestrator.Orchestrator
	hub          *hub.Hub
	logger       *slog.Logger

	httpServer *http.Server
}

// New creates a server listening on addr once Run is called.
func New(addr string, orch *orchestrator.Orchestrator, h *hub.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		orchestrator: orch,
		hub:          h,
		logger:       logger.With("component", "server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleObserver)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("listening for observers", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleObserver upgrades the connection, subscribes it to the hub, and
// forwards inbound frames to the orchestrator until either side goes away.
func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	payloads, subID := s.hub.Subscribe(ctx)
	s.logger.Debug("observer connected", "sub_id", subID, "remote", r.RemoteAddr)

	// Writer: push hub payloads to this socket. A slow socket only ever
	// loses its own payloads; the hub never blocks on it.
	go func() {
		for payload := range payloads {
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			writeCancel()
			if err != nil {
				cancel()
				return
			}
		}
	}()

	// Reader: decode inbound frames into events for the orchestrator.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.logger.Debug("observer disconnected", "sub_id", subID)
			return
		}

		event, err := orchestrator.ParseClientMessage(data)
		if err != nil {
			s.logger.Warn("dropping unparseable client message", "error", err)
			continue
		}
		s.orchestrator.Send(event)
	}
}

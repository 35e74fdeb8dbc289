// Package websocket serves live idle-clicker status to localhost clients.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"
)

const (
	serverReadTimeout  = 60 * time.Second
	serverWriteTimeout = 60 * time.Second
	serverIdleTimeout  = 300 * time.Second
)

// Server is a localhost-only WebSocket endpoint backed by a Hub.
type Server struct {
	hub    *Hub
	ln     net.Listener
	srv    *http.Server
	active atomic.Int32
	done   chan struct{}
}

// Listen binds 127.0.0.1:port and starts serving in the background.
func Listen(port int, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind to port %d: %w", port, err)
	}

	s := &Server{hub: hub, ln: ln, done: make(chan struct{})}
	s.srv = &http.Server{
		Handler:      websocket.Server{Handler: s.accept, Handshake: checkOrigin},
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	hub.logger.Info("WebSocket server starting", slog.String("address", "ws://"+s.Addr()))
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hub.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()
	return s, nil
}

// Addr returns the bound host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting connections, disconnects clients and waits for the
// serve goroutine.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.hub.closeAll()
	err := s.srv.Shutdown(ctx)
	if err != nil {
		err = s.srv.Close()
	}
	<-s.done
	return err
}

func (s *Server) accept(ws *websocket.Conn) {
	if req := ws.Request(); req != nil && !isLocalhost(req.RemoteAddr) {
		s.hub.logger.Warn("Rejected non-localhost connection", slog.String("remote_addr", req.RemoteAddr))
		ws.Close()
		return
	}
	s.hub.handle(ws, &s.active)
}

// checkOrigin rejects browser origins other than localhost to prevent
// cross-site WebSocket hijacking. Non-browser clients send no Origin.
func checkOrigin(cfg *websocket.Config, req *http.Request) error {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	if !isValidOrigin(origin) {
		return fmt.Errorf("invalid origin: %s", origin)
	}
	o, err := websocket.Origin(cfg, req)
	if err != nil {
		return err
	}
	cfg.Origin = o
	return nil
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	return ip.IsLoopback()
}

func isValidOrigin(origin string) bool {
	for _, scheme := range []string{"ws", "wss", "http", "https"} {
		for _, host := range []string{"localhost", "127.0.0.1"} {
			prefix := scheme + "://" + host
			if origin == prefix || strings.HasPrefix(origin, prefix+":") {
				return true
			}
		}
	}
	return false
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"
)

const (
	maxConnections    = 50
	maxMessageSize    = 1024
	readTimeout       = 120 * time.Second
	writeTimeout      = 5 * time.Second
	keepAliveInterval = 45 * time.Second
)

func (h *Hub) handle(ws *websocket.Conn, active *atomic.Int32) {
	if active.Load() >= maxConnections {
		h.logger.Warn("Connection rejected - too many active connections",
			slog.Int("max", maxConnections))
		ws.Close()
		return
	}
	active.Add(1)
	defer active.Add(-1)

	ws.MaxPayloadBytes = maxMessageSize
	remote := ws.Request().RemoteAddr

	c := newClient(ws)
	total := h.add(c)
	h.logger.Info("WebSocket client connected",
		slog.String("remote_addr", remote),
		slog.Int("total_clients", total))

	defer func() {
		remaining := h.remove(c)
		c.close()
		h.logger.Info("WebSocket client disconnected",
			slog.String("remote_addr", remote),
			slog.Int("remaining_clients", remaining))
	}()

	go h.writeLoop(c)

	for {
		if err := ws.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				level := slog.LevelDebug
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					level = slog.LevelInfo
				}
				h.logger.Log(context.Background(), level, "WebSocket read ended",
					slog.String("error", err.Error()),
					slog.String("remote_addr", remote))
			}
			return
		}

		if err := h.reply(c, msg); err != nil {
			h.logger.Debug("Error handling message",
				slog.String("error", err.Error()),
				slog.String("remote_addr", remote))
			return
		}
	}
}

// writeLoop is the only writer on the socket. It drains queued messages and
// sends keep-alives until the client is closed or a write fails.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		var msg string
		select {
		case <-c.closed:
			return
		case msg = <-c.send:
		case <-ticker.C:
			e := h.Last()
			e.Type = TypeKeepAlive
			e.Message = "Keep-alive"
			e.Timestamp = time.Now()
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			msg = string(data)
		}
		if err := sendWithTimeout(c.conn, msg, writeTimeout); err != nil {
			return
		}
	}
}

// reply answers ping messages with the latest status. Anything that is not a
// JSON event is ignored.
func (h *Hub) reply(c *client, msg string) error {
	var in Event
	if err := json.Unmarshal([]byte(msg), &in); err != nil {
		return nil
	}
	if in.Type != TypePing {
		return nil
	}

	out := h.Last()
	out.Type = TypePong
	out.Message = "pong"
	out.Timestamp = time.Now()
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if !c.enqueue(string(data)) {
		return errors.New("send queue full")
	}
	return nil
}

func sendWithTimeout(ws *websocket.Conn, msg string, timeout time.Duration) error {
	if err := ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return websocket.Message.Send(ws, msg)
}

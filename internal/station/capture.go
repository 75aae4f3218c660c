package station

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zombor/rxscan/internal/scanning"
)

// Capture message types sent to the client
const (
	msgTypeScan  = "scan"
	msgTypeError = "error"
)

const (
	// defaultWriteWait bounds a single write to the client
	defaultWriteWait = 10 * time.Second
	outboundBuffer   = 64
)

// captureMessage is pushed to the capture client
type captureMessage struct {
	Type  string `json:"type"`
	Scan  *Scan  `json:"scan,omitempty"`
	Error string `json:"error,omitempty"`
}

// outbound is queued for the write pump: either a token to record or an
// error to report
type outbound struct {
	token string
	err   string
}

// captureClient is one WebSocket connection feeding a scan session. It
// implements scanning.KeySource over the connection's read side.
type captureClient struct {
	id        string
	conn      *websocket.Conn
	out       chan outbound
	writeWait time.Duration
}

// enqueue hands msg to the write pump without blocking. It reports false
// and drops msg when the client is not keeping up.
func (c *captureClient) enqueue(msg outbound) bool {
	select {
	case c.out <- msg:
		return true
	default:
		slog.Warn("Capture client too slow, dropping message", "client", c.id, "token", msg.token)
		return false
	}
}

// ReadKey reads the next {"key": "..."} message. Malformed messages are
// reported to the client and skipped.
func (c *captureClient) ReadKey(ctx context.Context) (scanning.KeyEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return scanning.KeyEvent{}, err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return scanning.KeyEvent{}, io.EOF
			}
			return scanning.KeyEvent{}, err
		}

		var ev scanning.KeyEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Key == "" {
			c.enqueue(outbound{err: "invalid key message"})
			continue
		}
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		return ev, nil
	}
}

// Close closes the connection
func (c *captureClient) Close() error {
	return c.conn.Close()
}

// writePump records queued tokens and sends results until out is closed.
// It is the only writer on the connection. A write that misses its deadline
// closes the connection, which ends the read side too.
func (c *captureClient) writePump(service *Service) {
	source := "ws:" + c.id
	failed := false
	for msg := range c.out {
		reply := captureMessage{Type: msgTypeError, Error: msg.err}
		if msg.token != "" {
			scan, err := service.RecordScan(msg.token, source)
			if err != nil {
				slog.Error("Error recording scan", "client", c.id, "error", err)
				reply.Error = "failed to record scan"
			} else {
				reply = captureMessage{Type: msgTypeScan, Scan: scan}
			}
		}
		if failed {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := c.conn.WriteJSON(reply); err != nil {
			slog.Warn("Error writing capture message, closing", "client", c.id, "error", err)
			failed = true
			c.conn.Close()
		}
	}
}

// handleCapture upgrades to a WebSocket and runs one scan session for the
// lifetime of the connection
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := &captureClient{
		id:        uuid.New().String(),
		conn:      conn,
		out:       make(chan outbound, outboundBuffer),
		writeWait: s.writeWait,
	}
	defer client.Close()
	slog.Info("Capture client connected", "client", client.id)

	done := make(chan struct{})
	go func() {
		client.writePump(s.service)
		close(done)
	}()

	session := s.service.NewCaptureSession("ws:"+client.id, func(token string) {
		client.enqueue(outbound{token: token})
	})
	if err := session.Pump(r.Context(), client); err != nil {
		slog.Debug("Capture connection closed", "client", client.id, "error", err)
	}

	// No token can be emitted once Stop returns, so out is safe to close
	session.Stop()
	close(client.out)
	<-done
	slog.Info("Capture client disconnected", "client", client.id)
}

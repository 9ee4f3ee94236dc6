package broadcast

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SSESink writes events as Server-Sent Events.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink writes the event-stream headers and returns the sink.  It fails
// when the writer cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSESink{w: w, flusher: f}, nil
}

func (s *SSESink) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	if _, err := s.w.Write(buf); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) Heartbeat() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WebSocketSink writes events as text frames.  Heartbeats are ping control
// frames.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps an upgraded connection.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) Send(v any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *WebSocketSink) Heartbeat() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// ReadLoop drains client frames so control messages are processed, and
// calls done once the peer goes away.  Run it in its own goroutine.
func (s *WebSocketSink) ReadLoop(done func()) {
	defer done()
	s.conn.SetReadLimit(1024)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

// Close sends a normal closure frame and closes the connection.
func (s *WebSocketSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

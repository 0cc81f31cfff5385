package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dm/crawlwatch/internal/model"
)

// WebSocketSource dials the server's crawler update socket.
type WebSocketSource struct {
	URL        string
	HTTPClient *http.Client
	Header     http.Header
	// ReadLimit caps a single message in bytes. Default 1 MiB.
	ReadLimit int64
	// Keepalive sends a ping at this interval while connected. Zero
	// disables pings.
	Keepalive time.Duration
}

func (s *WebSocketSource) String() string { return "websocket " + s.URL }

// Open implements Source.
func (s *WebSocketSource) Open(ctx context.Context) (Stream, error) {
	conn, _, err := websocket.Dial(ctx, s.URL, &websocket.DialOptions{
		HTTPClient: s.HTTPClient,
		HTTPHeader: s.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", model.ErrTransport, s.URL, err)
	}
	limit := s.ReadLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	conn.SetReadLimit(limit)

	ws := &wsStream{conn: conn, done: make(chan struct{})}
	if s.Keepalive > 0 {
		go ws.keepalive(s.Keepalive)
	}
	return ws, nil
}

type wsStream struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (w *wsStream) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

func (w *wsStream) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

// keepalive pings until the stream is closed. A failed ping closes the
// connection so the pending Read returns.
func (w *wsStream) keepalive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := w.conn.Ping(ctx)
			cancel()
			if err != nil {
				w.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

package client

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens real websocket transports to the hub endpoint.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer constructs a dialer with the library defaults.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{dialer: websocket.DefaultDialer}
}

// Dial opens a websocket connection; a nil error means the transport is open.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *websocketTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) Close() error {
	return t.conn.Close()
}

/*
Package wsadapter connects the connection manager to a real websocket
endpoint using gorilla/websocket.
*/
package wsadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgivc/fetchbridge/internal/service/connection"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

type dialer struct {
	cfg Config
	wsd *websocket.Dialer
}

func NewDialer(cfg Config) *dialer {
	if cfg.HandshakeTimeout < 1 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	if cfg.WriteTimeout < 1 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &dialer{
		cfg: cfg,
		wsd: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (d *dialer) Dial(ctx context.Context, endpoint string) (connection.Channel, error) {
	conn, resp, err := d.wsd.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %s: %w", endpoint, err)
	}

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &channel{conn: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// channel adapts one websocket connection. The protocol is text JSON
// frames both ways; any other frame type is skipped.
type channel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *channel) Read() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("cannot read message: %w", err)
		}

		if msgType != websocket.TextMessage {
			continue
		}

		return data, nil
	}
}

func (c *channel) Write(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("cannot set write deadline: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("cannot write message: %w", err)
	}

	return nil
}

func (c *channel) Close() error {
	return c.conn.Close()
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: websocket.go
Description: WebSocket channel. Each binary or text frame is one message. A reader
goroutine feeds received frames to Read so that a cancelled context never leaves a
blocked socket read behind.
*/

package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket is a message channel over a websocket connection
type WebSocket struct {
	url    string
	logger *logrus.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	in      chan []byte
	done    chan struct{}
	quit    chan struct{}
	readErr error
}

// NewWebSocket creates a channel that dials url on Open
func NewWebSocket(url string, logger *logrus.Logger) *WebSocket {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebSocket{url: url, logger: logger}
}

// Name returns the channel name
func (c *WebSocket) Name() string {
	return c.url
}

// Open dials the websocket endpoint
func (c *WebSocket) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.conn = conn
	c.in = make(chan []byte, 64)
	c.done = make(chan struct{})
	c.quit = make(chan struct{})
	c.readErr = nil
	go c.readLoop(conn, c.in, c.done, c.quit)

	c.logger.WithField("url", c.url).Info("WebSocket connected")
	return nil
}

func (c *WebSocket) readLoop(conn *websocket.Conn, in chan<- []byte, done, quit chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Debug("WebSocket reader stopped")
			}
			return
		}
		select {
		case in <- data:
		case <-quit:
			return
		}
	}
}

// Read returns the next frame
func (c *WebSocket) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	in, done := c.in, c.done
	c.mu.Unlock()
	if in == nil {
		return nil, ErrNotOpen
	}

	select {
	case data := <-in:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		// Frames read before the error are still delivered
		select {
		case data := <-in:
			return data, nil
		default:
		}
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
}

// Write sends data as one binary frame
func (c *WebSocket) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline(ctx, 10*time.Second))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// IsOpen reports whether the connection is up
func (c *WebSocket) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close sends a close frame and drops the connection
func (c *WebSocket) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.in = nil
	if conn != nil {
		close(c.quit)
	}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

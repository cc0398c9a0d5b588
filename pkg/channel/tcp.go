/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: tcp.go
Description: TCP channel. In dial mode it connects to a remote peer, in listen mode it
accepts exactly one peer. Reads are polled with short deadlines so a cancelled context
interrupts a silent peer. A Framer cuts the byte stream into messages.
*/

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TCPOptions configures a TCP channel
type TCPOptions struct {
	Address      string
	BufferSize   int
	PollInterval time.Duration
	DialTimeout  time.Duration
	Framer       Framer // RawFramer when nil
	Logger       *logrus.Logger
}

func (o *TCPOptions) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 64 * 1024
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Framer == nil {
		o.Framer = RawFramer{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// TCP is a stream channel; each Read returns one frame
type TCP struct {
	opts   TCPOptions
	listen bool

	mu       sync.Mutex
	conn     net.Conn
	listener *net.TCPListener

	pending []byte // bytes read past the last frame, owned by Read
}

// NewTCPDialer creates a channel that connects to opts.Address
func NewTCPDialer(opts TCPOptions) *TCP {
	opts.defaults()
	return &TCP{opts: opts}
}

// NewTCPListener creates a channel that accepts one peer on opts.Address
func NewTCPListener(opts TCPOptions) *TCP {
	opts.defaults()
	return &TCP{opts: opts, listen: true}
}

// Name returns the channel name
func (c *TCP) Name() string {
	if c.listen {
		return "tcp-listen://" + c.opts.Address
	}
	return "tcp://" + c.opts.Address
}

// Listen binds the listening socket without waiting for a peer.
// Open calls it when needed.
func (c *TCP) Listen() (net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bind()
}

func (c *TCP) bind() (net.Addr, error) {
	if !c.listen {
		return nil, errors.New("channel is in dial mode")
	}
	if c.listener != nil {
		return c.listener.Addr(), nil
	}
	addr, err := net.ResolveTCPAddr("tcp", c.opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", c.opts.Address, err)
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", c.opts.Address, err)
	}
	c.listener = l
	return l.Addr(), nil
}

// Open connects or accepts a peer
func (c *TCP) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	if !c.listen {
		dialer := net.Dialer{Timeout: c.opts.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.opts.Address)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", c.opts.Address, err)
		}
		c.conn = conn
		c.pending = nil
		c.opts.Logger.WithField("remote", conn.RemoteAddr().String()).Info("Connected to peer")
		return nil
	}

	if _, err := c.bind(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.listener.SetDeadline(time.Now().Add(c.opts.PollInterval))
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return fmt.Errorf("failed to accept on %s: %w", c.opts.Address, err)
		}
		c.conn = conn
		c.pending = nil
		c.opts.Logger.WithField("remote", conn.RemoteAddr().String()).Info("Accepted peer")
		return nil
	}
}

func (c *TCP) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Read returns the next message sent by the peer
func (c *TCP) Read(ctx context.Context) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, ErrNotOpen
	}

	buf := make([]byte, c.opts.BufferSize)
	for {
		if msg, rest, ok := c.opts.Framer.Next(c.pending); ok {
			c.pending = append([]byte(nil), rest...)
			return append([]byte(nil), msg...), nil
		}
		if len(c.pending) >= c.opts.BufferSize {
			c.pending = nil
			return nil, fmt.Errorf("%w: %s after %d bytes", ErrFrameTooLarge, c.opts.Framer.Name(), c.opts.BufferSize)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.PollInterval))
		n, err := conn.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
			continue
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, io.EOF):
			if len(c.pending) > 0 {
				c.opts.Logger.WithField("bytes", len(c.pending)).Debug("Peer closed with a partial frame")
				c.pending = nil
			}
			return nil, ErrClosed
		case errors.Is(err, net.ErrClosed):
			return nil, ErrNotOpen
		default:
			return nil, err
		}
	}
}

// Write sends data to the peer
func (c *TCP) Write(ctx context.Context, data []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := c.opts.Framer.Frame(data)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(deadline(ctx, c.opts.DialTimeout))
	if _, err := conn.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// IsOpen reports whether a peer is connected
func (c *TCP) IsOpen() bool {
	return c.current() != nil
}

// Close disconnects the peer and releases the listening socket
func (c *TCP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	if c.listener != nil {
		errs = append(errs, c.listener.Close())
		c.listener = nil
	}
	return errors.Join(errs...)
}

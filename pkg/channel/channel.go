/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: channel.go
Description: Message channels carrying raw protocol bytes between the abstraction layer
and a peer. Every blocking call takes a context and returns its error once the context
is done.
*/

package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/config"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotOpen is returned by Read and Write before Open or after Close
	ErrNotOpen = errors.New("channel is not open")
	// ErrClosed is returned when the peer or the capture ended the conversation
	ErrClosed = errors.New("channel closed by peer")
)

// Channel carries whole messages to and from a peer
type Channel interface {
	// Open establishes the channel. Opening an open channel is a no-op.
	Open(ctx context.Context) error
	// Close tears the channel down. Closing a closed channel is a no-op.
	Close() error
	// Read blocks until a message arrives, the peer closes or ctx is done
	Read(ctx context.Context) ([]byte, error)
	// Write sends one message
	Write(ctx context.Context, data []byte) error
	// IsOpen reports whether the channel can carry data
	IsOpen() bool
	// Name identifies the channel in logs
	Name() string
}

// New builds the channel described by cfg
func New(cfg config.ChannelConfig, logger *logrus.Logger) (Channel, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch cfg.Type {
	case "tcp":
		framer, err := NewFramer(cfg.Framing, cfg.LengthWidth, []byte(cfg.Delimiter))
		if err != nil {
			return nil, err
		}
		opts := TCPOptions{
			Address:      cfg.Address,
			BufferSize:   cfg.BufferSize,
			PollInterval: cfg.PollInterval,
			DialTimeout:  cfg.DialTimeout,
			Framer:       framer,
			Logger:       logger,
		}
		switch cfg.Mode {
		case "dial", "":
			return NewTCPDialer(opts), nil
		case "listen":
			return NewTCPListener(opts), nil
		default:
			return nil, fmt.Errorf("unsupported tcp mode: %s", cfg.Mode)
		}
	case "websocket":
		return NewWebSocket(cfg.URL, logger), nil
	case "pcap":
		return NewReplay(cfg.PcapPath, uint16(cfg.PeerPort), logger), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}

// deadline returns the ctx deadline or now + fallback
func deadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

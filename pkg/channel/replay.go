/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: replay.go
Description: Replay channel backed by a packet capture. The TCP and UDP payloads sent
from the peer port become the inbound messages, in capture order; the end of the capture
closes the channel. Outbound messages are recorded and never leave the process.
*/

package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// Replay plays back the peer's side of a captured conversation
type Replay struct {
	path     string
	peerPort uint16 // 0 replays every payload
	logger   *logrus.Logger

	mu      sync.Mutex
	open    bool
	queue   [][]byte
	written [][]byte
}

// NewReplay creates a channel reading path on Open
func NewReplay(path string, peerPort uint16, logger *logrus.Logger) *Replay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Replay{path: path, peerPort: peerPort, logger: logger}
}

// Name returns the channel name
func (c *Replay) Name() string {
	return "pcap://" + c.path
}

// Open loads the peer payloads from the capture
func (c *Replay) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}

	payloads, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.queue = payloads
	c.written = nil
	c.open = true

	c.logger.WithFields(logrus.Fields{
		"capture":   c.path,
		"peer_port": c.peerPort,
		"messages":  len(payloads),
	}).Info("Capture loaded for replay")
	return nil
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func (c *Replay) load(ctx context.Context) ([][]byte, error) {
	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer file.Close()

	var src packetSource
	if strings.EqualFold(filepath.Ext(c.path), ".pcapng") {
		src, err = pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", c.path, err)
	}

	var payloads [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, _, err := src.ReadPacketData()
		if err == io.EOF {
			return payloads, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, src.LinkType(), gopacket.Default)
		if payload := c.peerPayload(packet); len(payload) > 0 {
			payloads = append(payloads, append([]byte(nil), payload...))
		}
	}
}

func (c *Replay) peerPayload(packet gopacket.Packet) []byte {
	if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		if c.peerPort == 0 || uint16(tcp.SrcPort) == c.peerPort {
			return tcp.Payload
		}
		return nil
	}
	if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		if c.peerPort == 0 || uint16(udp.SrcPort) == c.peerPort {
			return udp.Payload
		}
	}
	return nil
}

// Read returns the next captured payload
func (c *Replay) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrNotOpen
	}
	if len(c.queue) == 0 {
		return nil, ErrClosed
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	return next, nil
}

// Write records data
func (c *Replay) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// Written returns the messages written since Open
func (c *Replay) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// Remaining returns how many captured messages are left
func (c *Replay) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// IsOpen reports whether the capture is loaded
func (c *Replay) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close drops the remaining payloads
func (c *Replay) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.queue = nil
	return nil
}

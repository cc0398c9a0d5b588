/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: channel_test.go
Description: Tests for the pipe, TCP, WebSocket and replay channels and the factory.
*/

package channel_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/gorilla/websocket"
	"github.com/kleascm/akaylee-automaton/pkg/channel"
	"github.com/kleascm/akaylee-automaton/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPipeExchange(t *testing.T) {
	ctx := context.Background()
	a, b := channel.NewPipe("test")

	_, err := a.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrNotOpen)
	assert.ErrorIs(t, a.Write(ctx, []byte("x")), channel.ErrNotOpen)

	require.NoError(t, a.Open(ctx))
	require.NoError(t, b.Open(ctx))
	require.NoError(t, a.Write(ctx, []byte("ping")))

	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	// In-flight messages survive a close
	require.NoError(t, b.Write(ctx, []byte("pong")))
	require.NoError(t, b.Close())
	got, err = a.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)

	_, err = a.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.False(t, a.IsOpen())
	assert.ErrorIs(t, a.Open(ctx), channel.ErrClosed)
}

func TestPipeReadCancelled(t *testing.T) {
	a, _ := channel.NewPipe("cancel")
	require.NoError(t, a.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := a.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTCPLoopback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := channel.TCPOptions{Address: "127.0.0.1:0", PollInterval: 10 * time.Millisecond, Logger: quietLogger()}
	server := channel.NewTCPListener(opts)
	addr, err := server.Listen()
	require.NoError(t, err)
	defer server.Close()

	accepted := make(chan error, 1)
	go func() { accepted <- server.Open(ctx) }()

	client := channel.NewTCPDialer(channel.TCPOptions{Address: addr.String(), Logger: quietLogger()})
	require.NoError(t, client.Open(ctx))
	require.NoError(t, <-accepted)
	assert.True(t, server.IsOpen())

	require.NoError(t, client.Write(ctx, []byte("HELLO")))
	got, err := server.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), got)

	// A silent peer is interrupted by the context
	short, stop := context.WithTimeout(ctx, 30*time.Millisecond)
	defer stop()
	_, err = server.Read(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, client.Close())
	_, err = server.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestTCPDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	c := channel.NewTCPDialer(channel.TCPOptions{Address: addr, DialTimeout: time.Second, Logger: quietLogger()})
	assert.Error(t, c.Open(context.Background()))
	assert.False(t, c.IsOpen())
}

func TestWebSocketEcho(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := channel.NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), quietLogger())
	require.NoError(t, c.Open(ctx))
	defer c.Close()

	require.NoError(t, c.Write(ctx, []byte("HELLO")))
	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:HELLO"), got)

	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
	_, err = c.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrNotOpen)
}

// writeCapture writes a pcap with alternating client and server TCP segments
func writeCapture(t *testing.T, segments []struct {
	fromServer bool
	payload    string
}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for i, seg := range segments {
		srcPort, dstPort := layers.TCPPort(40000), layers.TCPPort(9000)
		if seg.fromServer {
			srcPort, dstPort = dstPort, srcPort
		}
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IPv4(127, 0, 0, 1),
			DstIP:    net.IPv4(127, 0, 0, 1),
		}
		tcp := &layers.TCP{SrcPort: srcPort, DstPort: dstPort, Seq: uint32(i * 100), PSH: true, ACK: true, Window: 1024}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(seg.payload)))

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000+int64(i), 0), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestReplayPeerPayloads(t *testing.T) {
	path := writeCapture(t, []struct {
		fromServer bool
		payload    string
	}{
		{false, "HELLO"},
		{true, "WELCOME"},
		{false, "DATA"},
		{true, "ACK"},
	})
	ctx := context.Background()

	c := channel.NewReplay(path, 9000, quietLogger())
	_, err := c.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrNotOpen)

	require.NoError(t, c.Open(ctx))
	assert.Equal(t, 2, c.Remaining())

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("WELCOME"), got)

	require.NoError(t, c.Write(ctx, []byte("DATA")))
	got, err = c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ACK"), got)

	_, err = c.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.Equal(t, [][]byte{[]byte("DATA")}, c.Written())

	// Without a peer port every payload is replayed
	all := channel.NewReplay(path, 0, quietLogger())
	require.NoError(t, all.Open(ctx))
	assert.Equal(t, 4, all.Remaining())
}

func TestReplayMissingFile(t *testing.T) {
	c := channel.NewReplay(filepath.Join(t.TempDir(), "none.pcap"), 0, quietLogger())
	assert.Error(t, c.Open(context.Background()))
}

func TestNewFromConfig(t *testing.T) {
	c, err := channel.New(config.ChannelConfig{Type: "tcp", Mode: "listen", Address: "127.0.0.1:0"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &channel.TCP{}, c)
	assert.Equal(t, "tcp-listen://127.0.0.1:0", c.Name())

	c, err = channel.New(config.ChannelConfig{Type: "websocket", URL: "ws://localhost/x"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &channel.WebSocket{}, c)

	c, err = channel.New(config.ChannelConfig{Type: "pcap", PcapPath: "a.pcap", PeerPort: 502}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &channel.Replay{}, c)

	_, err = channel.New(config.ChannelConfig{Type: "serial"}, quietLogger())
	assert.Error(t, err)
	_, err = channel.New(config.ChannelConfig{Type: "tcp", Mode: "multicast"}, quietLogger())
	assert.Error(t, err)
}

func tcpPair(t *testing.T, ctx context.Context, framer channel.Framer) (server, client *channel.TCP) {
	t.Helper()
	server = channel.NewTCPListener(channel.TCPOptions{Address: "127.0.0.1:0", PollInterval: 10 * time.Millisecond, Framer: framer, Logger: quietLogger()})
	addr, err := server.Listen()
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	accepted := make(chan error, 1)
	go func() { accepted <- server.Open(ctx) }()
	client = channel.NewTCPDialer(channel.TCPOptions{Address: addr.String(), PollInterval: 10 * time.Millisecond, Framer: framer, Logger: quietLogger()})
	require.NoError(t, client.Open(ctx))
	t.Cleanup(func() { client.Close() })
	require.NoError(t, <-accepted)
	return server, client
}

// TestTCPFramingSplitsCoalescedMessages checks back to back writes come out as separate messages
func TestTCPFramingSplitsCoalescedMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, framer := range []channel.Framer{
		channel.LengthFramer{Width: 2},
		channel.DelimiterFramer{Delimiter: []byte("\r\n")},
	} {
		t.Run(framer.Name(), func(t *testing.T) {
			server, client := tcpPair(t, ctx, framer)
			require.NoError(t, client.Write(ctx, []byte("HELLO")))
			require.NoError(t, client.Write(ctx, []byte("WORLD")))

			// Both writes are usually buffered into one socket read
			time.Sleep(50 * time.Millisecond)
			first, err := server.Read(ctx)
			require.NoError(t, err)
			second, err := server.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, []byte("HELLO"), first)
			assert.Equal(t, []byte("WORLD"), second)
		})
	}
}

// TestTCPFramingJoinsPartialReads checks a frame split across socket reads is reassembled
func TestTCPFramingJoinsPartialReads(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte{0x00, 0x05, 'H', 'E'})
		time.Sleep(30 * time.Millisecond)
		conn.Write([]byte{'L', 'L', 'O'})
		time.Sleep(30 * time.Millisecond)
	}()

	c := channel.NewTCPDialer(channel.TCPOptions{Address: l.Addr().String(), PollInterval: 10 * time.Millisecond, Framer: channel.LengthFramer{Width: 2}, Logger: quietLogger()})
	require.NoError(t, c.Open(ctx))
	defer c.Close()

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), got)
	_, err = c.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

// TestTCPFrameTooLarge checks an oversized frame fails instead of buffering forever
func TestTCPFrameTooLarge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := channel.NewTCPListener(channel.TCPOptions{
		Address: "127.0.0.1:0", BufferSize: 8, PollInterval: 10 * time.Millisecond,
		Framer: channel.DelimiterFramer{Delimiter: []byte("\n")}, Logger: quietLogger(),
	})
	addr, err := server.Listen()
	require.NoError(t, err)
	defer server.Close()
	accepted := make(chan error, 1)
	go func() { accepted <- server.Open(ctx) }()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, <-accepted)
	_, err = conn.Write([]byte("no delimiter in sight"))
	require.NoError(t, err)

	_, err = server.Read(ctx)
	assert.ErrorIs(t, err, channel.ErrFrameTooLarge)
}

func TestNewFramer(t *testing.T) {
	f, err := channel.NewFramer("length", 4, nil)
	require.NoError(t, err)
	framed, err := f.Frame([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, framed)

	msg, rest, ok := f.Next(append(framed, 0, 0))
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), msg)
	assert.Equal(t, []byte{0, 0}, rest)

	_, err = channel.LengthFramer{Width: 1}.Frame(make([]byte, 300))
	assert.ErrorIs(t, err, channel.ErrFrameTooLarge)

	f, err = channel.NewFramer("none", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", f.Name())

	_, err = channel.NewFramer("length", 3, nil)
	assert.Error(t, err)
	_, err = channel.NewFramer("delimiter", 0, nil)
	assert.Error(t, err)
	_, err = channel.NewFramer("cobs", 0, nil)
	assert.Error(t, err)
}

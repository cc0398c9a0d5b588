/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: framing.go
Description: Message framing for stream channels. A framer cuts the buffered byte stream
into messages and wraps outbound messages. Raw framing hands over whatever the socket
delivered; length framing uses a big-endian length prefix; delimiter framing ends each
message with a fixed byte sequence.
*/

package channel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFrameTooLarge is returned when a frame does not fit the read buffer
var ErrFrameTooLarge = errors.New("frame exceeds buffer size")

// Framer splits a byte stream into messages
type Framer interface {
	// Next cuts the first complete message off buf. ok is false when buf
	// does not hold a complete message yet.
	Next(buf []byte) (msg, rest []byte, ok bool)
	// Frame encodes msg for the stream
	Frame(msg []byte) ([]byte, error)
	Name() string
}

// NewFramer builds a framer by name: none, length or delimiter
func NewFramer(kind string, width int, delimiter []byte) (Framer, error) {
	switch kind {
	case "", "none", "raw":
		return RawFramer{}, nil
	case "length":
		switch width {
		case 1, 2, 4:
		default:
			return nil, fmt.Errorf("unsupported length prefix width %d", width)
		}
		return LengthFramer{Width: width}, nil
	case "delimiter":
		if len(delimiter) == 0 {
			return nil, errors.New("delimiter framing needs a delimiter")
		}
		return DelimiterFramer{Delimiter: append([]byte(nil), delimiter...)}, nil
	default:
		return nil, fmt.Errorf("unsupported framing: %s", kind)
	}
}

// RawFramer treats every chunk delivered by the socket as one message.
// Messages the peer sends back to back may arrive merged.
type RawFramer struct{}

func (RawFramer) Next(buf []byte) ([]byte, []byte, bool) {
	if len(buf) == 0 {
		return nil, buf, false
	}
	return buf, nil, true
}

func (RawFramer) Frame(msg []byte) ([]byte, error) { return msg, nil }
func (RawFramer) Name() string                     { return "none" }

// LengthFramer prefixes each message with its length
type LengthFramer struct {
	Width int // 1, 2 or 4 bytes
}

func (f LengthFramer) Next(buf []byte) ([]byte, []byte, bool) {
	if len(buf) < f.Width {
		return nil, buf, false
	}
	var n int
	switch f.Width {
	case 1:
		n = int(buf[0])
	case 2:
		n = int(binary.BigEndian.Uint16(buf))
	case 4:
		n = int(binary.BigEndian.Uint32(buf))
	}
	if len(buf) < f.Width+n {
		return nil, buf, false
	}
	end := f.Width + n
	return buf[f.Width:end], buf[end:], true
}

func (f LengthFramer) Frame(msg []byte) ([]byte, error) {
	out := make([]byte, f.Width, f.Width+len(msg))
	switch {
	case f.Width == 1 && len(msg) <= 0xFF:
		out[0] = byte(len(msg))
	case f.Width == 2 && len(msg) <= 0xFFFF:
		binary.BigEndian.PutUint16(out, uint16(len(msg)))
	case f.Width == 4 && uint64(len(msg)) <= 0xFFFFFFFF:
		binary.BigEndian.PutUint32(out, uint32(len(msg)))
	default:
		return nil, fmt.Errorf("%w: %d bytes with a %d byte prefix", ErrFrameTooLarge, len(msg), f.Width)
	}
	return append(out, msg...), nil
}

func (f LengthFramer) Name() string { return fmt.Sprintf("length/%d", f.Width) }

// DelimiterFramer ends each message with Delimiter. The delimiter is not
// part of the message.
type DelimiterFramer struct {
	Delimiter []byte
}

func (f DelimiterFramer) Next(buf []byte) ([]byte, []byte, bool) {
	i := bytes.Index(buf, f.Delimiter)
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i], buf[i+len(f.Delimiter):], true
}

func (f DelimiterFramer) Frame(msg []byte) ([]byte, error) {
	out := make([]byte, 0, len(msg)+len(f.Delimiter))
	out = append(out, msg...)
	return append(out, f.Delimiter...), nil
}

func (f DelimiterFramer) Name() string { return fmt.Sprintf("delimiter/%q", f.Delimiter) }

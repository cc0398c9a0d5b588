/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: pipe.go
Description: In-memory connected channel pair. Used to run a client and a master session
against each other without a network.
*/

package channel

import (
	"context"
	"sync"
)

const pipeBuffer = 128

type pipeShared struct {
	once   sync.Once
	closed chan struct{}
}

func (s *pipeShared) close() {
	s.once.Do(func() { close(s.closed) })
}

// PipeEnd is one side of a pipe
type PipeEnd struct {
	name   string
	in     <-chan []byte
	out    chan<- []byte
	shared *pipeShared

	mu   sync.Mutex
	open bool
}

// NewPipe returns two connected ends. Closing either end closes the pipe for
// both; messages already in flight are still delivered.
func NewPipe(name string) (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	shared := &pipeShared{closed: make(chan struct{})}
	a := &PipeEnd{name: name + "/a", in: ba, out: ab, shared: shared}
	b := &PipeEnd{name: name + "/b", in: ab, out: ba, shared: shared}
	return a, b
}

// Name returns the end name
func (p *PipeEnd) Name() string {
	return "pipe://" + p.name
}

// Open marks the end usable
func (p *PipeEnd) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.shared.closed:
		return ErrClosed
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	return nil
}

// Close closes the pipe for both ends
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	p.shared.close()
	return nil
}

// IsOpen reports whether the end was opened and the pipe is not closed
func (p *PipeEnd) IsOpen() bool {
	p.mu.Lock()
	open := p.open
	p.mu.Unlock()
	select {
	case <-p.shared.closed:
		return false
	default:
		return open
	}
}

func (p *PipeEnd) isOpened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Read returns the next message from the other end
func (p *PipeEnd) Read(ctx context.Context) ([]byte, error) {
	if !p.isOpened() {
		return nil, ErrNotOpen
	}
	select {
	case data := <-p.in:
		return data, nil
	default:
	}
	select {
	case data := <-p.in:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shared.closed:
		select {
		case data := <-p.in:
			return data, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Write queues a message for the other end
func (p *PipeEnd) Write(ctx context.Context, data []byte) error {
	if !p.IsOpen() {
		select {
		case <-p.shared.closed:
			return ErrClosed
		default:
			return ErrNotOpen
		}
	}
	msg := append([]byte(nil), data...)
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shared.closed:
		return ErrClosed
	}
}

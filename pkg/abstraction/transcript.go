/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: transcript.go
Description: Bounded, thread-safe record of the messages exchanged by an abstraction layer.
When full, the oldest entries are dropped.
*/

package abstraction

import (
	"sync"
	"time"
)

// Direction of a message relative to the session
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Entry is one exchanged message
type Entry struct {
	Seq       uint64    `json:"seq"`
	Direction Direction `json:"direction"`
	Symbol    string    `json:"symbol,omitempty"` // Empty for unrecognized inbound data
	Data      []byte    `json:"data"`
	Mutated   bool      `json:"mutated,omitempty"`
	Time      time.Time `json:"time"`
}

// Transcript keeps the most recent exchanged messages
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	next    uint64
}

// NewTranscript creates a transcript keeping at most maxSize entries
func NewTranscript(maxSize int) *Transcript {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Transcript{maxSize: maxSize}
}

// Add appends an entry and assigns its sequence number
func (t *Transcript) Add(e Entry) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	e.Seq = t.next
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if len(t.entries) >= t.maxSize {
		// Drop the oldest tenth to amortize the copy
		drop := t.maxSize / 10
		if drop == 0 {
			drop = 1
		}
		t.entries = append(t.entries[:0], t.entries[drop:]...)
	}
	t.entries = append(t.entries, e)
	return e
}

// Entries returns a copy of the kept entries, oldest first
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Last returns up to n most recent entries, oldest first
func (t *Transcript) Last(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(t.entries) {
		n = len(t.entries)
	}
	return append([]Entry(nil), t.entries[len(t.entries)-n:]...)
}

// Len returns the number of kept entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Total returns the number of entries ever added
func (t *Transcript) Total() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next
}

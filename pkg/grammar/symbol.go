/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: symbol.go
Description: Symbols are the inferred message templates of a protocol. A symbol is an
ordered list of fields (static bytes, variable-length data and size fields that carry
the length of another field). Symbols can test raw payloads for a match and encode
themselves back into bytes for emission on a channel.
*/

package grammar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrInvalidField is returned when a field definition cannot be used
	ErrInvalidField = errors.New("invalid field")
	// ErrLengthOverflow is returned when a size field cannot hold a length
	ErrLengthOverflow = errors.New("length does not fit in size field")
)

// FieldKind identifies how a field is matched and encoded
type FieldKind int

const (
	FieldStatic   FieldKind = iota // Constant bytes
	FieldVariable                  // Arbitrary bytes within length bounds
	FieldSize                      // Length of another field, unsigned big endian
)

// String returns the name used for the kind in model files
func (k FieldKind) String() string {
	switch k {
	case FieldStatic:
		return "static"
	case FieldVariable:
		return "variable"
	case FieldSize:
		return "size"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// ParseFieldKind converts a model file name into a FieldKind
func ParseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "static":
		return FieldStatic, nil
	case "variable":
		return FieldVariable, nil
	case "size":
		return FieldSize, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidField, s)
	}
}

// defaultVariableSpan bounds generated data for variable fields without MaxLen
const defaultVariableSpan = 16

// Field is one part of a symbol
type Field struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Value   []byte    `json:"value,omitempty"`   // Static value
	MinLen  int       `json:"min_len,omitempty"` // Variable lower bound
	MaxLen  int       `json:"max_len,omitempty"` // Variable upper bound, 0 = unbounded
	Default []byte    `json:"default,omitempty"` // Variable value used for emission
	Width   int       `json:"width,omitempty"`   // Size field width in bytes (1, 2 or 4)
	Target  string    `json:"target,omitempty"`  // Field whose length a size field carries
}

// Static returns a field matching exactly value
func Static(name string, value []byte) Field {
	return Field{Name: name, Kind: FieldStatic, Value: value}
}

// Variable returns a field matching between minLen and maxLen bytes
func Variable(name string, minLen, maxLen int) Field {
	return Field{Name: name, Kind: FieldVariable, MinLen: minLen, MaxLen: maxLen}
}

// Size returns a field of width bytes holding the length of target
func Size(name string, width int, target string) Field {
	return Field{Name: name, Kind: FieldSize, Width: width, Target: target}
}

func (f Field) validate() error {
	switch f.Kind {
	case FieldStatic:
		return nil
	case FieldVariable:
		if f.MinLen < 0 || (f.MaxLen > 0 && f.MaxLen < f.MinLen) {
			return fmt.Errorf("%w: %s: bad length bounds [%d,%d]", ErrInvalidField, f.Name, f.MinLen, f.MaxLen)
		}
		if f.Default != nil && !f.accepts(len(f.Default)) {
			return fmt.Errorf("%w: %s: default value outside length bounds", ErrInvalidField, f.Name)
		}
		return nil
	case FieldSize:
		switch f.Width {
		case 1, 2, 4:
		default:
			return fmt.Errorf("%w: %s: unsupported width %d", ErrInvalidField, f.Name, f.Width)
		}
		if f.Target == "" {
			return fmt.Errorf("%w: %s: size field without target", ErrInvalidField, f.Name)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s: %s", ErrInvalidField, f.Name, f.Kind)
	}
}

func (f Field) accepts(n int) bool {
	return n >= f.MinLen && (f.MaxLen <= 0 || n <= f.MaxLen)
}

func (f Field) generate(rng *rand.Rand) []byte {
	if f.Default != nil {
		return append([]byte(nil), f.Default...)
	}
	n := f.MinLen
	if rng == nil {
		return make([]byte, n)
	}
	upper := f.MaxLen
	if upper <= 0 {
		upper = f.MinLen + defaultVariableSpan
	}
	n += rng.Intn(upper - f.MinLen + 1)
	data := make([]byte, n)
	rng.Read(data)
	return data
}

// Symbol is an immutable message template
type Symbol struct {
	ID   string
	Name string

	fields []Field
	index  map[string]int // field name -> position
	sizeOf map[int]int    // target position -> size field position
	tail   []int          // width of the fields after i when all are fixed, else -1
	minLen int
	maxLen int // -1 when a variable field is unbounded
}

// NewSymbol validates fields and builds a symbol
func NewSymbol(id, name string, fields ...Field) (*Symbol, error) {
	if id == "" {
		return nil, errors.New("symbol id must not be empty")
	}
	s := &Symbol{
		ID:     id,
		Name:   name,
		fields: append([]Field(nil), fields...),
		index:  make(map[string]int, len(fields)),
		sizeOf: make(map[int]int),
	}
	for i, f := range s.fields {
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("symbol %s: %w", id, err)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("symbol %s: %w: field %d has no name", id, ErrInvalidField, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("symbol %s: %w: duplicate field %s", id, ErrInvalidField, f.Name)
		}
		s.index[f.Name] = i
	}
	for i, f := range s.fields {
		if f.Kind != FieldSize {
			continue
		}
		t, ok := s.index[f.Target]
		if !ok || s.fields[t].Kind != FieldVariable {
			return nil, fmt.Errorf("symbol %s: %w: size field %s must target a variable field", id, ErrInvalidField, f.Name)
		}
		if _, taken := s.sizeOf[t]; taken {
			return nil, fmt.Errorf("symbol %s: %w: field %s has two size fields", id, ErrInvalidField, f.Target)
		}
		s.sizeOf[t] = i
	}
	s.measure()
	return s, nil
}

func (s *Symbol) measure() {
	s.tail = make([]int, len(s.fields))
	fixed := 0
	for i := len(s.fields) - 1; i >= 0; i-- {
		s.tail[i] = fixed
		if fixed < 0 {
			continue
		}
		switch f := s.fields[i]; f.Kind {
		case FieldStatic:
			fixed += len(f.Value)
		case FieldSize:
			fixed += f.Width
		default:
			fixed = -1
		}
	}

	for _, f := range s.fields {
		switch f.Kind {
		case FieldStatic:
			s.minLen += len(f.Value)
			if s.maxLen >= 0 {
				s.maxLen += len(f.Value)
			}
		case FieldSize:
			s.minLen += f.Width
			if s.maxLen >= 0 {
				s.maxLen += f.Width
			}
		case FieldVariable:
			s.minLen += f.MinLen
			if f.MaxLen <= 0 {
				s.maxLen = -1
			} else if s.maxLen >= 0 {
				s.maxLen += f.MaxLen
			}
		}
	}
}

// MustSymbol is NewSymbol that panics on error, for fixtures and tests
func MustSymbol(id, name string, fields ...Field) *Symbol {
	s, err := NewSymbol(id, name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the symbol's fields
func (s *Symbol) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Equal reports whether both symbols carry the same identifier
func (s *Symbol) Equal(o *Symbol) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.ID == o.ID
}

func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Name == "" {
		return s.ID
	}
	return s.Name
}

// Match reports whether data is an instance of the symbol
func (s *Symbol) Match(data []byte) bool {
	_, ok := s.Split(data)
	return ok
}

// maxMatchSteps bounds the candidate lengths tried for one payload. A
// payload that needs more is reported as not matching.
const maxMatchSteps = 1 << 20

// Split matches data and returns the value of every field by name
func (s *Symbol) Split(data []byte) (map[string][]byte, bool) {
	if !s.fits(data) {
		return nil, false
	}
	m := &matcher{sym: s, data: data, values: make([][]byte, len(s.fields))}
	if len(s.sizeOf) == 0 {
		m.failed = make(map[[2]int]struct{})
	}
	if !m.match(0, 0) {
		return nil, false
	}
	out := make(map[string][]byte, len(m.values))
	for i, f := range s.fields {
		out[f.Name] = m.values[i]
	}
	return out, true
}

// fits rejects payloads whose length or fixed suffix rule out a match
func (s *Symbol) fits(data []byte) bool {
	if len(data) < s.minLen || (s.maxLen >= 0 && len(data) > s.maxLen) {
		return false
	}
	end := len(data)
	for i := len(s.fields) - 1; i >= 0 && s.tail[i] >= 0; i-- {
		f := s.fields[i]
		switch f.Kind {
		case FieldStatic:
			if !bytes.HasSuffix(data[:end], f.Value) {
				return false
			}
			end -= len(f.Value)
		case FieldSize:
			end -= f.Width
		default:
			return true
		}
	}
	return true
}

// matcher walks the fields of a symbol over one payload. Failed (field,
// offset) pairs are remembered when no size relation ties fields together.
type matcher struct {
	sym    *Symbol
	data   []byte
	values [][]byte
	failed map[[2]int]struct{}
	steps  int
}

func (m *matcher) match(idx, pos int) bool {
	key := [2]int{idx, pos}
	if m.failed != nil {
		if _, seen := m.failed[key]; seen {
			return false
		}
	}
	if m.try(idx, pos) {
		return true
	}
	if m.failed != nil {
		m.failed[key] = struct{}{}
	}
	return false
}

func (m *matcher) try(idx, pos int) bool {
	s := m.sym
	if m.steps++; m.steps > maxMatchSteps {
		return false
	}
	if idx == len(s.fields) {
		return pos == len(m.data) && s.relationsHold(m.values)
	}
	f := s.fields[idx]
	rest := len(m.data) - pos

	switch f.Kind {
	case FieldStatic:
		n := len(f.Value)
		if rest < n || !bytes.Equal(m.data[pos:pos+n], f.Value) {
			return false
		}
		m.values[idx] = m.data[pos : pos+n]
		return m.match(idx+1, pos+n)

	case FieldSize:
		if rest < f.Width {
			return false
		}
		m.values[idx] = m.data[pos : pos+f.Width]
		// Target already consumed: check the relation now
		if t := s.index[f.Target]; t < idx && decodeLength(m.values[idx]) != uint64(len(m.values[t])) {
			return false
		}
		return m.match(idx+1, pos+f.Width)

	case FieldVariable:
		lo, hi := f.MinLen, f.MaxLen
		if hi <= 0 || hi > rest {
			hi = rest
		}
		// A size field already consumed pins the length
		if j, ok := s.sizeOf[idx]; ok && j < idx {
			n := int(decodeLength(m.values[j]))
			if !f.accepts(n) || n > rest {
				return false
			}
			lo, hi = n, n
		}
		// Only fixed width fields follow: the length is what remains
		if t := s.tail[idx]; t >= 0 {
			n := rest - t
			if n < lo || n > hi {
				return false
			}
			lo, hi = n, n
		}
		// An unbounded free neighbour absorbs any extra length
		if s.free(idx) && idx+1 < len(s.fields) && s.free(idx+1) && s.fields[idx+1].MaxLen <= 0 {
			hi = lo
		}
		for n := lo; n <= hi; n++ {
			if m.steps > maxMatchSteps {
				break
			}
			m.values[idx] = m.data[pos : pos+n]
			if m.match(idx+1, pos+n) {
				return true
			}
		}
		m.values[idx] = nil
		return false
	}
	return false
}

// free reports whether field i is variable and carries no size relation
func (s *Symbol) free(i int) bool {
	if s.fields[i].Kind != FieldVariable {
		return false
	}
	_, sized := s.sizeOf[i]
	return !sized
}

func (s *Symbol) relationsHold(values [][]byte) bool {
	for target, j := range s.sizeOf {
		if decodeLength(values[j]) != uint64(len(values[target])) {
			return false
		}
	}
	return true
}

// Encode renders the symbol as bytes. Variable fields use their default
// value when present, otherwise data drawn from rng. Size fields are
// computed last from the rendered target.
func (s *Symbol) Encode(rng *rand.Rand) ([]byte, error) {
	values := make([][]byte, len(s.fields))
	for i, f := range s.fields {
		switch f.Kind {
		case FieldStatic:
			values[i] = f.Value
		case FieldVariable:
			values[i] = f.generate(rng)
		}
	}
	for target, j := range s.sizeOf {
		v, err := encodeLength(len(values[target]), s.fields[j].Width)
		if err != nil {
			return nil, fmt.Errorf("symbol %s field %s: %w", s.ID, s.fields[j].Name, err)
		}
		values[j] = v
	}
	return bytes.Join(values, nil), nil
}

// Assemble renders the symbol from explicit field values. Static fields
// always carry their template value; size fields are recomputed from their
// target so the result stays well framed.
func (s *Symbol) Assemble(values map[string][]byte) ([]byte, error) {
	parts := make([][]byte, len(s.fields))
	for i, f := range s.fields {
		switch f.Kind {
		case FieldStatic:
			parts[i] = f.Value
		case FieldVariable:
			v, ok := values[f.Name]
			if !ok {
				return nil, fmt.Errorf("symbol %s: missing value for field %s", s.ID, f.Name)
			}
			parts[i] = v
		}
	}
	for target, j := range s.sizeOf {
		v, err := encodeLength(len(parts[target]), s.fields[j].Width)
		if err != nil {
			return nil, fmt.Errorf("symbol %s field %s: %w", s.ID, s.fields[j].Name, err)
		}
		parts[j] = v
	}
	return bytes.Join(parts, nil), nil
}

func decodeLength(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	}
	return 0
}

func encodeLength(n, width int) ([]byte, error) {
	out := make([]byte, width)
	switch width {
	case 1:
		if n > 0xFF {
			return nil, ErrLengthOverflow
		}
		out[0] = byte(n)
	case 2:
		if n > 0xFFFF {
			return nil, ErrLengthOverflow
		}
		binary.BigEndian.PutUint16(out, uint16(n))
	case 4:
		if uint64(n) > 0xFFFFFFFF {
			return nil, ErrLengthOverflow
		}
		binary.BigEndian.PutUint32(out, uint32(n))
	default:
		return nil, ErrInvalidField
	}
	return out, nil
}

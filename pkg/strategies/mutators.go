/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators.go
Description: Payload mutation strategies used to fuzz a live peer. Each mutator derives a
new payload from an encoded symbol: bit flipping, byte substitution, arithmetic on
embedded integers, boundary values and rotation. Randomness comes from the session's
seeded source so fuzzing runs can be replayed.
*/

package strategies

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
)

// Mutator derives a mutated copy of an outbound payload
type Mutator interface {
	// Mutate returns a new payload; data is never modified
	Mutate(data []byte, rng *rand.Rand) []byte
	// Name returns the mutator name
	Name() string
	// Description returns a short description
	Description() string
}

// BitFlipMutator flips individual bits
type BitFlipMutator struct {
	mutationRate float64 // Probability of mutation per bit
}

// NewBitFlipMutator creates a new bit flip mutator
func NewBitFlipMutator(mutationRate float64) *BitFlipMutator {
	return &BitFlipMutator{mutationRate: mutationRate}
}

// Mutate flips bits with the configured probability
func (m *BitFlipMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	out := append([]byte(nil), data...)
	for i := 0; i < len(out)*8; i++ {
		if rng.Float64() < m.mutationRate {
			out[i/8] ^= 1 << (i % 8)
		}
	}
	return out
}

func (m *BitFlipMutator) Name() string { return "BitFlipMutator" }

func (m *BitFlipMutator) Description() string {
	return "Flips individual bits for fine-grained mutations"
}

// ByteSubstitutionMutator replaces bytes with random values
type ByteSubstitutionMutator struct {
	mutationRate float64 // Probability of mutation per byte
}

// NewByteSubstitutionMutator creates a new byte substitution mutator
func NewByteSubstitutionMutator(mutationRate float64) *ByteSubstitutionMutator {
	return &ByteSubstitutionMutator{mutationRate: mutationRate}
}

// Mutate substitutes bytes with the configured probability
func (m *ByteSubstitutionMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	out := append([]byte(nil), data...)
	for i := range out {
		if rng.Float64() < m.mutationRate {
			out[i] = byte(rng.Intn(256))
		}
	}
	return out
}

func (m *ByteSubstitutionMutator) Name() string { return "ByteSubstitutionMutator" }

func (m *ByteSubstitutionMutator) Description() string {
	return "Substitutes bytes with random values for coarse-grained mutations"
}

// ArithmeticMutator adds small deltas to 16 and 32 bit big-endian integers,
// the usual encoding of length and counter fields on the wire
type ArithmeticMutator struct {
	mutationRate float64 // Probability of mutation per offset
}

// NewArithmeticMutator creates a new arithmetic mutator
func NewArithmeticMutator(mutationRate float64) *ArithmeticMutator {
	return &ArithmeticMutator{mutationRate: mutationRate}
}

var arithmeticDeltas = []int32{1, -1, 2, -2, 16, -16, 0x100, -0x100, 0x1000, -0x1000}

// Mutate applies arithmetic deltas at random offsets
func (m *ArithmeticMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	out := append([]byte(nil), data...)
	for i := 0; i+1 < len(out); i++ {
		if rng.Float64() >= m.mutationRate {
			continue
		}
		delta := arithmeticDeltas[rng.Intn(len(arithmeticDeltas))]
		if i+3 < len(out) && rng.Intn(2) == 0 {
			v := int32(binary.BigEndian.Uint32(out[i:]))
			binary.BigEndian.PutUint32(out[i:], uint32(v+delta))
			continue
		}
		v := int16(binary.BigEndian.Uint16(out[i:]))
		binary.BigEndian.PutUint16(out[i:], uint16(v+int16(delta)))
	}
	return out
}

func (m *ArithmeticMutator) Name() string { return "ArithmeticMutator" }

func (m *ArithmeticMutator) Description() string {
	return "Performs arithmetic operations on embedded integers"
}

// BoundaryMutator overwrites bytes with boundary values
type BoundaryMutator struct {
	mutationRate float64 // Probability of mutation per byte
}

// NewBoundaryMutator creates a new boundary value mutator
func NewBoundaryMutator(mutationRate float64) *BoundaryMutator {
	return &BoundaryMutator{mutationRate: mutationRate}
}

var boundaryBytes = []byte{0x00, 0x01, 0x7F, 0x80, 0xFE, 0xFF}

// Mutate writes boundary values with the configured probability
func (m *BoundaryMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	out := append([]byte(nil), data...)
	for i := range out {
		if rng.Float64() < m.mutationRate {
			out[i] = boundaryBytes[rng.Intn(len(boundaryBytes))]
		}
	}
	return out
}

func (m *BoundaryMutator) Name() string { return "BoundaryMutator" }

func (m *BoundaryMutator) Description() string {
	return "Writes boundary values that commonly trip range checks"
}

// CrossOverMutator rotates the payload around a random split point
type CrossOverMutator struct {
	mutationRate float64 // Probability of a rotation
}

// NewCrossOverMutator creates a new crossover mutator
func NewCrossOverMutator(mutationRate float64) *CrossOverMutator {
	return &CrossOverMutator{mutationRate: mutationRate}
}

// Mutate swaps the head and tail of the payload
func (m *CrossOverMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	if len(data) < 2 || rng.Float64() >= m.mutationRate {
		return append([]byte(nil), data...)
	}
	split := 1 + rng.Intn(len(data)-1)
	out := make([]byte, 0, len(data))
	out = append(out, data[split:]...)
	return append(out, data[:split]...)
}

func (m *CrossOverMutator) Name() string { return "CrossOverMutator" }

func (m *CrossOverMutator) Description() string {
	return "Recombines the head and tail of a payload"
}

// Strategies lists the names accepted by NewMutator
var Strategies = []string{"bitflip", "substitute", "arithmetic", "boundary", "crossover", "composite"}

// NewMutator builds a mutator by strategy name. The composite strategy chains
// every other strategy, chainLength at a time, in random order.
func NewMutator(strategy string, mutationRate float64, chainLength int) (Mutator, error) {
	switch strings.ToLower(strategy) {
	case "bitflip", "bit_flip":
		return NewBitFlipMutator(mutationRate), nil
	case "substitute", "byte_substitution":
		return NewByteSubstitutionMutator(mutationRate), nil
	case "arithmetic":
		return NewArithmeticMutator(mutationRate), nil
	case "boundary":
		return NewBoundaryMutator(mutationRate), nil
	case "crossover":
		return NewCrossOverMutator(mutationRate), nil
	case "composite", "":
		return NewCompositeMutator([]Mutator{
			NewBitFlipMutator(mutationRate),
			NewByteSubstitutionMutator(mutationRate),
			NewArithmeticMutator(mutationRate),
			NewBoundaryMutator(mutationRate),
			NewCrossOverMutator(mutationRate),
		}, chainLength, true), nil
	default:
		return nil, fmt.Errorf("unknown mutation strategy: %s", strategy)
	}
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators_test.go
Description: Tests for the payload mutators: input immutability, rate extremes,
reproducibility and construction by name.
*/

package strategies_test

import (
	"math/rand"
	"testing"

	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allMutators(rate float64) []strategies.Mutator {
	return []strategies.Mutator{
		strategies.NewBitFlipMutator(rate),
		strategies.NewByteSubstitutionMutator(rate),
		strategies.NewArithmeticMutator(rate),
		strategies.NewBoundaryMutator(rate),
		strategies.NewCrossOverMutator(rate),
	}
}

// TestMutatorsKeepInput checks no mutator writes through to its input
func TestMutatorsKeepInput(t *testing.T) {
	original := []byte{0x00, 0xFF, 0x55, 0xAA, 0x10, 0x20}
	for _, m := range allMutators(1.0) {
		data := append([]byte(nil), original...)
		out := m.Mutate(data, rand.New(rand.NewSource(1)))
		assert.Equal(t, original, data, m.Name())
		assert.Len(t, out, len(original), m.Name())
		assert.NotEmpty(t, m.Description())
	}
}

// TestZeroRateIsIdentity checks a zero rate leaves payloads untouched
func TestZeroRateIsIdentity(t *testing.T) {
	data := []byte("HELLO WORLD")
	for _, m := range allMutators(0) {
		assert.Equal(t, data, m.Mutate(data, rand.New(rand.NewSource(1))), m.Name())
	}
}

func TestBitFlipFullRate(t *testing.T) {
	out := strategies.NewBitFlipMutator(1.0).Mutate([]byte{0x00, 0xFF}, rand.New(rand.NewSource(1)))
	assert.Equal(t, []byte{0xFF, 0x00}, out)
}

func TestCrossOverRotates(t *testing.T) {
	data := []byte("abcdef")
	out := strategies.NewCrossOverMutator(1.0).Mutate(data, rand.New(rand.NewSource(5)))
	assert.NotEqual(t, data, out)
	assert.ElementsMatch(t, data, out)
}

// TestMutationIsReproducible checks the same seed yields the same payload
func TestMutationIsReproducible(t *testing.T) {
	m, err := strategies.NewMutator("composite", 0.3, 3)
	require.NoError(t, err)

	data := []byte("USER alice\r\nPASS secret\r\n")
	a := m.Mutate(data, rand.New(rand.NewSource(11)))
	b := m.Mutate(data, rand.New(rand.NewSource(11)))
	assert.Equal(t, a, b)
}

func TestNewMutator(t *testing.T) {
	for name, want := range map[string]string{
		"bitflip":    "BitFlipMutator",
		"substitute": "ByteSubstitutionMutator",
		"arithmetic": "ArithmeticMutator",
		"boundary":   "BoundaryMutator",
		"crossover":  "CrossOverMutator",
		"composite":  "CompositeMutator",
	} {
		m, err := strategies.NewMutator(name, 0.1, 2)
		require.NoError(t, err, name)
		assert.Equal(t, want, m.Name())
	}

	_, err := strategies.NewMutator("quantum", 0.1, 2)
	assert.Error(t, err)
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: grammar_mutator.go
Description: GrammarMutator for structure-aware fuzzing. Resolves the payload against the
model's grammar, mutates only its variable fields and reassembles it so static markers
and size fields stay valid.
*/

package strategies

import (
	"math/rand"

	"github.com/kleascm/akaylee-automaton/pkg/grammar"
)

// GrammarMutator applies an inner mutator to the variable fields of a
// recognized symbol
type GrammarMutator struct {
	grammar *grammar.Grammar
	inner   Mutator
}

// NewGrammarMutator wraps inner with structure awareness from g
func NewGrammarMutator(g *grammar.Grammar, inner Mutator) *GrammarMutator {
	return &GrammarMutator{grammar: g, inner: inner}
}

// Mutate mutates the variable fields of data. Payloads the grammar does not
// recognize fall back to raw mutation.
func (m *GrammarMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	sym := m.grammar.Resolve(data)
	if sym == nil {
		return m.inner.Mutate(data, rng)
	}
	values, ok := sym.Split(data)
	if !ok {
		return m.inner.Mutate(data, rng)
	}

	for _, f := range sym.Fields() {
		if f.Kind != grammar.FieldVariable {
			continue
		}
		values[f.Name] = m.inner.Mutate(values[f.Name], rng)
	}

	out, err := sym.Assemble(values)
	if err != nil {
		// Mutated field no longer fits its size field
		return m.inner.Mutate(data, rng)
	}
	return out
}

func (m *GrammarMutator) Name() string { return "GrammarMutator" }

func (m *GrammarMutator) Description() string {
	return "Mutates variable fields of recognized symbols and keeps framing intact"
}

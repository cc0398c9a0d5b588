/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: composite.go
Description: Composite mutator. Chains several payload mutators, in registration order or
in an order drawn from the session's random source.
*/

package strategies

import (
	"math/rand"
)

// CompositeMutator composes multiple Mutator instances for chained mutation
type CompositeMutator struct {
	mutators    []Mutator // List of mutators to chain
	chainLength int       // Number of mutators to apply per mutation
	randomOrder bool      // If true, apply mutators in random order
}

// NewCompositeMutator creates a new CompositeMutator.
// chainLength defaults to len(mutators) when zero or too large.
func NewCompositeMutator(mutators []Mutator, chainLength int, randomOrder bool) *CompositeMutator {
	if chainLength <= 0 || chainLength > len(mutators) {
		chainLength = len(mutators)
	}
	return &CompositeMutator{
		mutators:    mutators,
		chainLength: chainLength,
		randomOrder: randomOrder,
	}
}

// Mutate applies the chain to data
func (c *CompositeMutator) Mutate(data []byte, rng *rand.Rand) []byte {
	order := make([]int, len(c.mutators))
	for i := range order {
		order[i] = i
	}
	if c.randomOrder {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	out := append([]byte(nil), data...)
	for _, idx := range order[:c.chainLength] {
		out = c.mutators[idx].Mutate(out, rng)
	}
	return out
}

// Name returns the name of this mutator
func (c *CompositeMutator) Name() string {
	return "CompositeMutator"
}

// Description returns a description of this mutator
func (c *CompositeMutator) Description() string {
	return "Chains multiple mutators (sequential or random order)"
}

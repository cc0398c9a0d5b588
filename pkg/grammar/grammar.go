/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: grammar.go
Description: Grammar is the vocabulary of a protocol model: the ordered set of symbols
produced by inference plus the relations declared between their fields. A grammar is
read-only once built and is shared by every session replaying the same model.
*/

package grammar

import (
	"errors"
	"fmt"
)

// ErrDuplicateSymbol is returned when two symbols share an identifier
var ErrDuplicateSymbol = errors.New("duplicate symbol")

// RelationKind names a declared inter-field relation
type RelationKind string

const (
	RelationSize RelationKind = "size" // Field holds the byte length of Target
)

// Relation is a declared dependency between two fields of one symbol
type Relation struct {
	Kind   RelationKind `json:"kind"`
	Symbol string       `json:"symbol"`
	Field  string       `json:"field"`
	Target string       `json:"target"`
}

// Grammar holds the symbols a session can send and recognize
type Grammar struct {
	name    string
	symbols []*Symbol
	byID    map[string]*Symbol
}

// New builds a grammar. Resolution order is the order of symbols.
func New(name string, symbols ...*Symbol) (*Grammar, error) {
	g := &Grammar{
		name:    name,
		symbols: make([]*Symbol, 0, len(symbols)),
		byID:    make(map[string]*Symbol, len(symbols)),
	}
	for _, s := range symbols {
		if s == nil {
			return nil, errors.New("nil symbol")
		}
		if _, dup := g.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, s.ID)
		}
		g.byID[s.ID] = s
		g.symbols = append(g.symbols, s)
	}
	return g, nil
}

// Name returns the grammar name
func (g *Grammar) Name() string {
	return g.name
}

// Len returns the number of symbols
func (g *Grammar) Len() int {
	return len(g.symbols)
}

// Symbol looks up a symbol by identifier
func (g *Grammar) Symbol(id string) (*Symbol, bool) {
	s, ok := g.byID[id]
	return s, ok
}

// Symbols returns the symbols in resolution order
func (g *Grammar) Symbols() []*Symbol {
	return append([]*Symbol(nil), g.symbols...)
}

// Resolve returns the first symbol matching data, or nil when the payload is
// not recognized. Unrecognized input is an expected outcome, not an error.
func (g *Grammar) Resolve(data []byte) *Symbol {
	for _, s := range g.symbols {
		if s.Match(data) {
			return s
		}
	}
	return nil
}

// Relations lists every relation declared by the grammar's symbols
func (g *Grammar) Relations() []Relation {
	var out []Relation
	for _, s := range g.symbols {
		for _, f := range s.fields {
			if f.Kind == FieldSize {
				out = append(out, Relation{
					Kind:   RelationSize,
					Symbol: s.ID,
					Field:  f.Name,
					Target: f.Target,
				})
			}
		}
	}
	return out
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: model.go
Description: YAML model files. A model carries the inferred grammar (symbols and their
fields) and the automaton that walks it. Byte values are written in hex, or as text for
printable protocols.
*/

package model

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"gopkg.in/yaml.v3"
)

// Model is a loaded protocol model
type Model struct {
	Name      string
	Grammar   *grammar.Grammar
	Automaton *automaton.Automaton
}

// Document is the on-disk form of a model
type Document struct {
	Name      string       `yaml:"name"`
	Symbols   []SymbolDoc  `yaml:"symbols"`
	Automaton AutomatonDoc `yaml:"automaton"`
}

// SymbolDoc describes one symbol
type SymbolDoc struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name,omitempty"`
	Fields []FieldDoc `yaml:"fields"`
}

// FieldDoc describes one field. Value and Default are hex; Text and
// DefaultText are literal alternatives.
type FieldDoc struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Value       string `yaml:"value,omitempty"`
	Text        string `yaml:"text,omitempty"`
	Min         int    `yaml:"min,omitempty"`
	Max         int    `yaml:"max,omitempty"`
	Default     string `yaml:"default,omitempty"`
	DefaultText string `yaml:"default_text,omitempty"`
	Width       int    `yaml:"width,omitempty"`
	Target      string `yaml:"target,omitempty"`
}

// AutomatonDoc describes the state graph
type AutomatonDoc struct {
	Initial string     `yaml:"initial,omitempty"`
	States  []StateDoc `yaml:"states"`
}

// StateDoc describes a state and its ordered transitions
type StateDoc struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name,omitempty"`
	Transitions []TransitionDoc `yaml:"transitions,omitempty"`
}

// TransitionDoc describes one transition
type TransitionDoc struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name,omitempty"`
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"`
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// Load reads and builds the model at path
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a model document. Unknown keys are rejected.
func Parse(data []byte) (*Model, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return Build(&doc)
}

// Build turns a document into a grammar and an automaton
func Build(doc *Document) (*Model, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	symbols := make([]*grammar.Symbol, 0, len(doc.Symbols))
	for i, sd := range doc.Symbols {
		sym, err := buildSymbol(sd)
		if err != nil {
			return nil, fmt.Errorf("symbols[%d]: %w", i, err)
		}
		symbols = append(symbols, sym)
	}
	g, err := grammar.New(doc.Name, symbols...)
	if err != nil {
		return nil, err
	}

	if len(doc.Automaton.States) == 0 {
		return nil, fmt.Errorf("automaton.states must not be empty")
	}
	a := automaton.New(doc.Name)
	for _, sd := range doc.Automaton.States {
		if err := a.AddState(automaton.NewState(sd.ID, sd.Name)); err != nil {
			return nil, fmt.Errorf("state %q: %w", sd.ID, err)
		}
	}
	if doc.Automaton.Initial != "" {
		if err := a.SetInitial(doc.Automaton.Initial); err != nil {
			return nil, fmt.Errorf("automaton.initial: %w", err)
		}
	}
	for _, sd := range doc.Automaton.States {
		for _, td := range sd.Transitions {
			t, err := buildTransition(sd.ID, td, g)
			if err != nil {
				return nil, fmt.Errorf("state %s: transition %q: %w", sd.ID, td.ID, err)
			}
			if err := a.Connect(t); err != nil {
				return nil, fmt.Errorf("state %s: %w", sd.ID, err)
			}
		}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	return &Model{Name: doc.Name, Grammar: g, Automaton: a}, nil
}

func buildSymbol(sd SymbolDoc) (*grammar.Symbol, error) {
	fields := make([]grammar.Field, 0, len(sd.Fields))
	for _, fd := range sd.Fields {
		kind, err := grammar.ParseFieldKind(fd.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Name, err)
		}
		f := grammar.Field{
			Name:   fd.Name,
			Kind:   kind,
			MinLen: fd.Min,
			MaxLen: fd.Max,
			Width:  fd.Width,
			Target: fd.Target,
		}
		if f.Value, err = bytesOf(fd.Value, fd.Text); err != nil {
			return nil, fmt.Errorf("field %q: value: %w", fd.Name, err)
		}
		if f.Default, err = bytesOf(fd.Default, fd.DefaultText); err != nil {
			return nil, fmt.Errorf("field %q: default: %w", fd.Name, err)
		}
		fields = append(fields, f)
	}
	return grammar.NewSymbol(sd.ID, sd.Name, fields...)
}

func bytesOf(hexValue, text string) ([]byte, error) {
	switch {
	case hexValue != "" && text != "":
		return nil, fmt.Errorf("hex and text forms are exclusive")
	case hexValue != "":
		return hex.DecodeString(hexValue)
	case text != "":
		return []byte(text), nil
	default:
		return nil, nil
	}
}

func buildTransition(source string, td TransitionDoc, g *grammar.Grammar) (*automaton.Transition, error) {
	kind, err := automaton.ParseTransitionKind(td.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case automaton.KindOpenChannel:
		return automaton.NewOpenChannelTransition(td.ID, td.Name, source, td.Target), nil
	case automaton.KindCloseChannel:
		return automaton.NewCloseChannelTransition(td.ID, td.Name, source, td.Target), nil
	}

	input, ok := g.Symbol(td.Input)
	if !ok {
		return nil, fmt.Errorf("unknown input symbol %q", td.Input)
	}
	var output *grammar.Symbol
	if td.Output != "" {
		if output, ok = g.Symbol(td.Output); !ok {
			return nil, fmt.Errorf("unknown output symbol %q", td.Output)
		}
	}
	return automaton.NewDataTransition(td.ID, td.Name, source, td.Target, input, output), nil
}

// Document converts a model back to its on-disk form
func (m *Model) Document() *Document {
	doc := &Document{Name: m.Name}
	for _, s := range m.Grammar.Symbols() {
		sd := SymbolDoc{ID: s.ID, Name: s.Name}
		for _, f := range s.Fields() {
			sd.Fields = append(sd.Fields, FieldDoc{
				Name:    f.Name,
				Kind:    f.Kind.String(),
				Value:   hex.EncodeToString(f.Value),
				Min:     f.MinLen,
				Max:     f.MaxLen,
				Default: hex.EncodeToString(f.Default),
				Width:   f.Width,
				Target:  f.Target,
			})
		}
		doc.Symbols = append(doc.Symbols, sd)
	}

	initial, _ := m.Automaton.Initial()
	if initial != nil {
		doc.Automaton.Initial = initial.ID
	}
	for _, s := range m.Automaton.States() {
		sd := StateDoc{ID: s.ID, Name: s.Name}
		for _, t := range s.Transitions() {
			td := TransitionDoc{ID: t.ID, Name: t.Name, Kind: kindName(t.Kind), Target: t.Target}
			if t.Input != nil {
				td.Input = t.Input.ID
			}
			if t.Output != nil {
				td.Output = t.Output.ID
			}
			sd.Transitions = append(sd.Transitions, td)
		}
		doc.Automaton.States = append(doc.Automaton.States, sd)
	}
	return doc
}

func kindName(k automaton.TransitionKind) string {
	switch k {
	case automaton.KindOpenChannel:
		return "open_channel"
	case automaton.KindCloseChannel:
		return "close_channel"
	default:
		return "data"
	}
}

// Marshal encodes m as a YAML model document
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.Document()); err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

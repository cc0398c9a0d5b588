/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: render.go
Description: Graph exports of an automaton for external viewers: Graphviz dot and Mermaid
flowcharts. Data transitions are labelled with their input/output symbols, lifecycle
transitions are drawn dashed.
*/

package automaton

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDot renders a as a Graphviz digraph. When current is not empty that
// state is highlighted.
func WriteDot(w io.Writer, a *Automaton, current string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "digraph %q {\n", a.Name())
	fmt.Fprint(bw, "  graph [rankdir=TB,nodesep=0.3,ranksep=0.6]\n")
	fmt.Fprint(bw, "  node [shape=\"box\" style=\"rounded,filled\" fillcolor=\"#99ddc8\"]\n")
	fmt.Fprint(bw, "  edge [fontsize=\"10\"]\n")

	for _, s := range a.States() {
		style := "rounded,filled"
		if s.ID == a.initial {
			style += ",bold"
		}
		if s.IsTerminal() {
			style += ",dashed"
		}
		fill := "#99ddc8"
		if s.ID == current {
			fill = "#f98b8b"
		}
		fmt.Fprintf(bw, "  %q [label=%q, style=%q, fillcolor=%q]\n", s.ID, s.Name, style, fill)
	}

	for _, t := range a.Transitions() {
		attrs := fmt.Sprintf("label=%q", edgeLabel(t))
		if t.Kind.IsLifecycle() {
			attrs += ", style=\"dashed\""
		}
		fmt.Fprintf(bw, "  %q -> %q [%s]\n", t.Source, t.Target, attrs)
	}

	fmt.Fprint(bw, "}\n")
	return bw.Flush()
}

// WriteMermaid renders a as a Mermaid flowchart
func WriteMermaid(w io.Writer, a *Automaton) error {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, s := range a.States() {
		opener, closer := "[", "]"
		switch {
		case s.ID == a.initial:
			opener, closer = "((", "))"
		case s.IsTerminal():
			opener, closer = "([", "])"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", mermaidID(s.ID), opener, mermaidText(s.Name), closer))
	}

	for _, t := range a.Transitions() {
		arrow := fmt.Sprintf("-- \"%s\" -->", mermaidText(edgeLabel(t)))
		if t.Kind.IsLifecycle() {
			arrow = fmt.Sprintf("-. \"%s\" .->", mermaidText(edgeLabel(t)))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", mermaidID(t.Source), arrow, mermaidID(t.Target)))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func edgeLabel(t *Transition) string {
	switch t.Kind {
	case KindOpenChannel:
		return "open"
	case KindCloseChannel:
		return "close"
	}
	label := t.Input.String()
	if t.Output != nil {
		label += " / " + t.Output.String()
	}
	return label
}

func mermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}

func mermaidText(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: inspect.go
Description: Inspect and export commands. Inspect validates a model and prints its flat
records; export renders the automaton as Graphviz DOT or Mermaid.
*/

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Inspect validates a model and prints its records
func Inspect(cmd *cobra.Command, args []string) error {
	m, err := model.Load(args[0])
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	save, _ := cmd.Flags().GetBool("save")

	snap := m.Automaton.Snapshot()
	if err := writeSnapshot(os.Stdout, snap, output); err != nil {
		return err
	}

	if save {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveModel(snap); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Model %s stored in %s\n", m.Name, s.Path())
	}
	return nil
}

func writeSnapshot(w io.Writer, snap automaton.Snapshot, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Export renders the automaton of a model
func Export(cmd *cobra.Command, args []string) error {
	m, err := model.Load(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")
	current, _ := cmd.Flags().GetString("current")

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "dot":
		return automaton.WriteDot(w, m.Automaton, current)
	case "mermaid":
		return automaton.WriteMermaid(w, m.Automaton)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

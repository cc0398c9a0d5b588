/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utilities.go
Description: Utility commands: list the payload mutation strategies.
*/

package commands

import (
	"fmt"

	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/spf13/cobra"
)

// ListMutators lists the available mutation strategies
func ListMutators(cmd *cobra.Command, args []string) {
	fmt.Println("Available mutation strategies")
	fmt.Println("=============================")
	fmt.Println()

	for i, name := range strategies.Strategies {
		m, err := strategies.NewMutator(name, 0.01, 3)
		if err != nil {
			continue
		}
		fmt.Printf("%d. %s (%s)\n", i+1, name, m.Name())
		fmt.Printf("   %s\n", m.Description())
		fmt.Println()
	}

	fmt.Println("Use --fuzz --strategy <name> to mutate emitted payloads")
}

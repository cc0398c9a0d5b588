/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: history.go
Description: History command. Lists the sessions recorded in the store, or the strides of
a single session in execution order.
*/

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// History prints recorded sessions or one session's strides
func History(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if len(args) == 1 {
		sum, err := s.Session(args[0])
		if err != nil {
			return err
		}
		strides, err := s.Strides(sum.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "Session %s (%s, model %s, seed %d): %s\n\n", sum.ID, sum.Role, sum.Model, sum.Seed, sum.Reason)
		fmt.Fprintln(tw, "SEQ\tTRANSITION\tKIND\tFROM\tTO\tRECEIVED\tTIME")
		for _, st := range strides {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				st.Seq, st.Transition, st.Kind, st.Source, st.Target, dash(st.Received), st.Time.Format(time.RFC3339Nano))
		}
		return nil
	}

	sums, err := s.Sessions()
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "SESSION\tMODEL\tROLE\tSTEPS\tFINAL\tREASON\tSTARTED\tDURATION")
	for _, sum := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			sum.ID, sum.Model, sum.Role, sum.Steps, sum.FinalState, sum.Reason,
			sum.Started.Format(time.RFC3339), sum.Finished.Sub(sum.Started).Round(time.Millisecond))
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

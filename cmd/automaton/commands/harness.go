/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: harness.go
Description: Harness command. Plays the model against itself over in-memory pipes and
prints one line per pair.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/harness"
	"github.com/kleascm/akaylee-automaton/pkg/store"
	"github.com/kleascm/akaylee-automaton/pkg/utils"
	"github.com/spf13/cobra"
)

// RunHarness executes the self-play harness
func RunHarness(cmd *cobra.Command, args []string) error {
	cfg, logs, m, err := prepare()
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.GetLogger()

	pairs, err := cmd.Flags().GetInt("pairs")
	if err != nil {
		return err
	}

	mutator, err := buildMutator(cfg.Fuzz, m.Grammar)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background(), logger)
	defer cancel()

	w, err := wire(ctx, cfg, m, logs)
	if err != nil {
		return err
	}
	defer w.close()

	results, runErr := harness.Run(ctx, m, harness.Config{
		Pairs:          pairs,
		Seed:           resolveSeed(cfg.Session.Seed, logger),
		MaxSteps:       cfg.Session.MaxSteps,
		Timeout:        cfg.Session.Timeout,
		ReceiveTimeout: cfg.Session.ReceiveTimeout,
		Mutator:        mutator,
		Reporters:      w.reporters,
		BeforeRun:      w.started,
		Logger:         logger,
	})

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tMASTER\tCLIENT\tFINAL\tSTEPS\tOK")
	passed := 0
	for _, r := range results {
		if r.OK() {
			passed++
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%v\n",
			r.Index, reason(r.Master), reason(r.Client),
			final(r.Master)+"/"+final(r.Client),
			fmt.Sprintf("%d/%d", steps(r.Master), steps(r.Client)), r.OK())
	}
	tw.Flush()
	fmt.Printf("\n%d/%d pairs reached a terminal state\n", passed, len(results))

	if dir, _ := cmd.Flags().GetString("results-dir"); dir != "" {
		var sums []store.SessionSummary
		for _, r := range results {
			for _, res := range []*automaton.Result{r.Master, r.Client} {
				if res != nil {
					sums = append(sums, store.Summarize(m.Name, res))
				}
			}
		}
		path, err := utils.WriteResult(dir, "harness", m.Name, sums)
		if err != nil {
			logger.WithError(err).Error("Failed to write harness results")
		} else {
			fmt.Printf("Results written to %s\n", path)
		}
	}

	if p := logs.FilePath(); p != "" {
		fmt.Printf("Log file: %s\n", p)
	}

	if runErr != nil {
		return runErr
	}
	if passed != len(results) {
		return fmt.Errorf("%d pairs did not complete", len(results)-passed)
	}
	return nil
}

func reason(res *automaton.Result) string {
	if res == nil {
		return "-"
	}
	return res.Reason.String()
}

func final(res *automaton.Result) string {
	if res == nil {
		return "-"
	}
	return res.FinalState
}

func steps(res *automaton.Result) int {
	if res == nil {
		return 0
	}
	return res.Steps
}

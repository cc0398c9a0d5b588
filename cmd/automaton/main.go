/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for the protocol automaton. Runs sessions against live
peers or pcap replays, plays a model against itself, and inspects, exports and reviews
models and recorded sessions.
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kleascm/akaylee-automaton/cmd/automaton/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "automaton",
		Short: "Protocol automaton - drive inferred protocol models over real channels",
		Long: `Walks a protocol state machine as a client or as a master. A model couples an
inferred grammar of message symbols with the automaton that orders them; sessions
speak the model over TCP, WebSocket or a pcap replay, and can fuzz the payloads
they emit.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Configuration file path")
	pf.String("log-level", "info", "Logging level (debug, info, warn, error)")
	pf.String("log-format", "custom", "Log format (text, json, custom)")
	pf.String("log-dir", "", "Log output directory (empty = console only)")
	pf.Int("log-max-files", 10, "Maximum number of log files to keep")
	pf.String("store", "", "Session store file (bbolt)")

	viper.BindPFlag("config", pf.Lookup("config"))
	viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	viper.BindPFlag("logging.format", pf.Lookup("log-format"))
	viper.BindPFlag("logging.dir", pf.Lookup("log-dir"))
	viper.BindPFlag("logging.max_files", pf.Lookup("log-max-files"))
	viper.BindPFlag("store.path", pf.Lookup("store"))

	// Session flags shared by run and harness
	sessionFlags := func(cmd *cobra.Command) {
		f := cmd.Flags()
		f.String("model", "", "Model file")
		f.Int64("seed", 0, "Random seed (0 = time based)")
		f.Int("max-steps", 0, "Stop after this many steps (0 = unlimited)")
		f.Duration("timeout", 0, "Overall session timeout (0 = none)")
		f.Duration("receive-timeout", 5*time.Second, "Idle timeout per receive (0 = none)")
		f.Bool("fuzz", false, "Mutate emitted payloads")
		f.String("strategy", "composite", "Mutation strategy")
		f.Float64("mutation-rate", 0.01, "Probability of mutation per byte")
		f.Bool("structured", false, "Mutate variable fields only, keeping static and size fields intact")
		f.Bool("metrics", false, "Serve Prometheus metrics")
		f.String("metrics-address", ":9464", "Metrics listen address")
		f.String("results-dir", "", "Write session results as JSON under this directory")
	}
	bindSessionFlags := func(cmd *cobra.Command) {
		f := cmd.Flags()
		viper.BindPFlag("model", f.Lookup("model"))
		viper.BindPFlag("session.seed", f.Lookup("seed"))
		viper.BindPFlag("session.max_steps", f.Lookup("max-steps"))
		viper.BindPFlag("session.timeout", f.Lookup("timeout"))
		viper.BindPFlag("session.receive_timeout", f.Lookup("receive-timeout"))
		viper.BindPFlag("fuzz.enabled", f.Lookup("fuzz"))
		viper.BindPFlag("fuzz.strategy", f.Lookup("strategy"))
		viper.BindPFlag("fuzz.mutation_rate", f.Lookup("mutation-rate"))
		viper.BindPFlag("fuzz.structured", f.Lookup("structured"))
		viper.BindPFlag("metrics.enabled", f.Lookup("metrics"))
		viper.BindPFlag("metrics.address", f.Lookup("metrics-address"))
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session against a live peer or a capture",
		Long: `Run a single session of the model. As a client the session reacts to what the
peer sends; as a master it picks transitions at random and speaks first.`,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindSessionFlags(cmd)
			f := cmd.Flags()
			viper.BindPFlag("session.role", f.Lookup("role"))
			viper.BindPFlag("channel.type", f.Lookup("channel"))
			viper.BindPFlag("channel.mode", f.Lookup("mode"))
			viper.BindPFlag("channel.address", f.Lookup("address"))
			viper.BindPFlag("channel.url", f.Lookup("url"))
			viper.BindPFlag("channel.pcap_path", f.Lookup("pcap"))
			viper.BindPFlag("channel.peer_port", f.Lookup("peer-port"))
			viper.BindPFlag("channel.framing", f.Lookup("framing"))
		},
		RunE: commands.RunSession,
	}
	sessionFlags(runCmd)
	runCmd.Flags().String("role", "client", "Session role (client, master)")
	runCmd.Flags().String("channel", "tcp", "Channel type (tcp, websocket, pcap)")
	runCmd.Flags().String("mode", "dial", "TCP mode (dial, listen)")
	runCmd.Flags().String("address", "127.0.0.1:9000", "TCP address")
	runCmd.Flags().String("url", "", "WebSocket URL")
	runCmd.Flags().String("pcap", "", "Capture file to replay")
	runCmd.Flags().Int("peer-port", 0, "Replay only payloads sent from this port (0 = all)")
	runCmd.Flags().String("framing", "none", "TCP message framing (none, length, delimiter)")
	rootCmd.AddCommand(runCmd)

	harnessCmd := &cobra.Command{
		Use:   "harness",
		Short: "Play the model against itself",
		Long: `Run pairs of sessions over in-memory pipes, one master and one client per pair.
Every pair should reach a terminal state; the first channel failure stops the run.`,
		PreRun: func(cmd *cobra.Command, args []string) { bindSessionFlags(cmd) },
		RunE:   commands.RunHarness,
	}
	sessionFlags(harnessCmd)
	harnessCmd.Flags().Int("pairs", 4, "Number of concurrent master/client pairs")
	rootCmd.AddCommand(harnessCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect <model>",
		Short: "Validate a model and print its records",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.Inspect,
	}
	inspectCmd.Flags().String("output", "yaml", "Output format (yaml, json)")
	inspectCmd.Flags().Bool("save", false, "Also store the model records in the session store")
	rootCmd.AddCommand(inspectCmd)

	exportCmd := &cobra.Command{
		Use:   "export <model>",
		Short: "Render the automaton for Graphviz or Mermaid",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.Export,
	}
	exportCmd.Flags().String("format", "dot", "Output format (dot, mermaid)")
	exportCmd.Flags().String("out", "", "Output file (default stdout)")
	exportCmd.Flags().String("current", "", "State to highlight (dot only)")
	rootCmd.AddCommand(exportCmd)

	historyCmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recorded sessions, or the strides of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  commands.History,
	}
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list-mutators",
		Short: "List the payload mutation strategies",
		Run:   commands.ListMutators,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, commands.ErrSessionTimeout) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	root := buildRoot(os.Stdout, os.Stdin)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot(out io.Writer, in io.Reader) *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	checkFlags := &CheckFlags{}
	depsFlags := &DepsFlags{}

	bootCommand := command{out: out, in: in}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(bootCommand, globalFlags, runFlags),
		createCheckCommand(bootCommand, globalFlags, checkFlags),
		createDepsCommand(bootCommand, globalFlags, depsFlags),
		createStatusCommand(bootCommand, globalFlags),
		createVersionCommand(bootCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tradeboot",
		Short: "Bootstrap and launch the trading programs",
		Long: `Tradeboot verifies the Python interpreter and pip, ensures the trading
dependencies are importable, then launches the detached take-profit monitor
and the foreground main program.

Examples:
  tradeboot run                          # full launch with defaults
  tradeboot run --config tradeboot.toml  # launch with a config file
  tradeboot check                        # verify interpreter, pip and imports
  tradeboot deps                         # install missing dependencies only
  tradeboot status                       # probe the detached monitor`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createRunCommand creates the run subcommand.
func createRunCommand(bootCommand command, globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Verify the toolchain, ensure dependencies and launch both programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootCommand.Run(globalFlags, *runFlags)
		},
	}
	cmd.Flags().BoolVar(&runFlags.NonInteractive, "non-interactive", false, "skip the acknowledgment pause before exiting")
	cmd.Flags().BoolVar(&runFlags.Debug, "debug", false, "enable debug logging")
	return cmd
}

// createCheckCommand creates the check subcommand.
func createCheckCommand(bootCommand command, globalFlags *GlobalFlags, checkFlags *CheckFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the interpreter and pip, then report importability (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootCommand.Check(globalFlags, *checkFlags)
		},
	}
	cmd.Flags().BoolVar(&checkFlags.Debug, "debug", false, "enable debug logging")
	return cmd
}

// createDepsCommand creates the deps subcommand.
func createDepsCommand(bootCommand command, globalFlags *GlobalFlags, depsFlags *DepsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Verify the toolchain and install missing dependencies without launching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootCommand.Deps(globalFlags, *depsFlags)
		},
	}
	cmd.Flags().BoolVar(&depsFlags.Debug, "debug", false, "enable debug logging")
	return cmd
}

// createStatusCommand creates the status subcommand.
func createStatusCommand(bootCommand command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the detached monitor's PID file and report liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootCommand.Status(globalFlags)
		},
	}
}

// createVersionCommand creates the version subcommand.
func createVersionCommand(bootCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tradeboot version",
		Run: func(cmd *cobra.Command, args []string) {
			bootCommand.Version()
		},
	}
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/credential"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the passport web app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logLevel(debug))
		},
	}

	root := &cobra.Command{
		Use:          "gatekeeper",
		Short:        "Trainer passport sign-in service",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level (includes OCR output)")

	root.AddCommand(serve, newDigestCmd())
	return root
}

// newDigestCmd prints the stored form of PINs and recovery phrases, for
// editing account rows by hand.
func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest SECRET...",
		Short: "Print the digest stored for each PIN or recovery phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), credential.Hash(a)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

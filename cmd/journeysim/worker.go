package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bizobs/journeysim/internal/logging"
	"github.com/bizobs/journeysim/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run as a spawned journey-step worker (internal)",
	Hidden: true,
	Long: `Worker mode is entered by the orchestrator, never by hand. Identity,
business context and port arrive through the JOURNEYSIM_* environment set
up by the spawner.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := logging.New(logLevel(cmd))
		slog.SetDefault(logger)

		cfg, err := worker.FromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "worker misconfigured: %v\n", err)
			os.Exit(1)
		}

		srv := worker.NewServer(cfg, worker.WithLogger(logger))
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("worker server failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

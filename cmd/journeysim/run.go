package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bizobs/journeysim/pkg/journey"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [journey.yaml]",
	Short: "Run a journey definition once and print the run record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		core, _, err := buildCore(cmd)
		if err != nil {
			fmt.Printf("Error initializing journeysim: %v\n", err)
			os.Exit(1)
		}
		defer core.StopAll()

		j, err := journey.Load(args[0])
		if err != nil {
			fmt.Printf("Error loading journey: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rec, err := core.RunJourney(ctx, j)
		if err != nil {
			fmt.Printf("Journey run error: %v\n", err)
			os.Exit(1)
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding run record: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

		if rec.Failed > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d steps failed\n", rec.Failed, rec.TotalSteps)
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"fmt"

	"github.com/bizobs/journeysim"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the journeysim version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("journeysim %s\n", journeysim.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

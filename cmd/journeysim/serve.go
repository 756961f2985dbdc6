package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration control plane",
	Long: `Starts the control-plane HTTP server. Journeys can then be submitted with
POST /journeys/run; GET /status reports ports, workers and breakers.`,
	Run: func(cmd *cobra.Command, args []string) {
		core, cfg, err := buildCore(cmd)
		if err != nil {
			fmt.Printf("Error initializing journeysim: %v\n", err)
			os.Exit(1)
		}
		defer core.StopAll()

		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = cfg.Listen
		}

		srv := &http.Server{
			Addr:    listen,
			Handler: core.Handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting journeysim control plane on %s\n", srv.Addr)
			fmt.Printf("Worker port range: %d-%d\n", cfg.Ports.Min, cfg.Ports.Max)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nShutting down... Signal: %v\n", sig)
			core.StopAll()
			srv.Close()
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

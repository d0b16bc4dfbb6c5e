package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/taskrunner/pkg/cli"
	"github.com/cuemby/taskrunner/pkg/metrics"
	"github.com/cuemby/taskrunner/pkg/rpc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a runtime and expose it over the TaskRunnerService gRPC gateway",
	Long: `serve brings up a runtime.Runtime the same way run does, then exposes
it to remote callers via pkg/rpc.Server and mounts /metrics, /health, /ready
and /live on a second HTTP listener, running in the foreground until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		rt, err := cli.StartRuntime(configPath, dataDir)
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		srv := rpc.NewServer(rt)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(addr); err != nil {
				errCh <- fmt.Errorf("rpc server error: %w", err)
			}
		}()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		fmt.Printf("taskrunner gateway listening on %s\n", addr)
		fmt.Printf("metrics/health listening on %s\n", metricsAddr)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\n%v\n", err)
		}

		srv.Stop()
		_ = metricsSrv.Close()
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":7070", "Listen address for the gRPC gateway")
	serveCmd.Flags().String("metrics-addr", ":7071", "Listen address for /metrics, /health, /ready and /live")
}

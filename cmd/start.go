package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
	"github.com/adamgarcia4/goLearning/agencysync/node"
)

var (
	nodeID   string
	role     string
	interval time.Duration
	maxFails uint64
	workers  int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a cluster server heartbeat",
	Long: `Start the heartbeat for one cluster server.

Examples:
  # Start a worker against the default agency
  agencysync start --node-id=worker-1

  # Start a coordinator against a remote agency
  agencysync start --node-id=coord-1 --role=coordinator --agency=tcp://10.0.0.5:8529`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	// Identity flags
	startCmd.Flags().StringVarP(&nodeID, "node-id", "n", node.DefaultNodeID, "Unique server identifier")
	startCmd.Flags().StringVarP(&role, "role", "r", "worker", "Server role (worker, coordinator)")

	// Heartbeat flags
	startCmd.Flags().DurationVarP(&interval, "interval", "i", node.DefaultHeartbeatInterval, "Heartbeat interval")
	startCmd.Flags().Uint64Var(&maxFails, "max-fails", node.DefaultMaxFailsBeforeWarning, "Failed beats in a row before warning")
	startCmd.Flags().IntVar(&workers, "workers", node.DefaultDispatchWorkers, "Concurrent sync jobs (workers only)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if err := initLogging(true); err != nil {
		return err
	}

	r, err := heartbeat.ParseRole(role)
	if err != nil {
		return err
	}
	ep, err := agencyEndpoint()
	if err != nil {
		return err
	}

	// Create node configuration with defaults
	config := node.DefaultConfig(nodeID)

	// Override with CLI flags
	config.Role = r
	config.AgencyEndpoint = ep
	config.HeartbeatInterval = interval
	config.MaxFailsBeforeWarning = maxFails
	config.DispatchWorkers = workers

	n, err := node.New(config)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	// Wait for interrupt signal or an agency-requested shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-n.Done():
		return nil
	}

	logger.Info("Shutting down...")
	if err := n.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

// agencyEnv may hold the agency endpoint when --agency is not given
const agencyEnv = "AGENCYSYNC_AGENCY"

var (
	logLevel   string
	agencySpec string
)

var rootCmd = &cobra.Command{
	Use:   "agencysync",
	Short: "Keep cluster servers in step with the agency",
	Long: `agencysync runs the heartbeat that keeps each cluster server in step with
the agency, the consistent store holding the cluster Plan and Current state.

Workers apply new Plan versions in the background; coordinators refresh their
view of the cluster. Both report their state back to the agency on every beat.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&agencySpec, "agency", "", "Agency endpoint, e.g. tcp://127.0.0.1:8529 (env "+agencyEnv+")")
}

// initLogging sets up the global logger for a command
func initLogging(writeToStdout bool) error {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.Init("", writeToStdout)
	return logger.SetLevel(level)
}

// agencyEndpoint resolves --agency, then the environment, then the default
func agencyEndpoint() (endpoint.Endpoint, error) {
	spec := agencySpec
	if spec == "" {
		spec = os.Getenv(agencyEnv)
	}
	if spec == "" {
		return endpoint.Default(), nil
	}
	return endpoint.Parse(spec)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
	"github.com/adamgarcia4/goLearning/agencysync/transport"
)

const requestTimeout = 5 * time.Second

var (
	listenSpec string
	certFile   string
	keyFile    string
)

var agencyCmd = &cobra.Command{
	Use:   "agency",
	Short: "Run or poke a development agency",
}

var agencyServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an in-memory agency over gRPC",
	Long: `Serve an in-memory agency over gRPC so that servers started with
"agencysync start" in other processes can share it. State is lost on exit.

Examples:
  agencysync agency serve --listen=tcp://127.0.0.1:8529
  agencysync agency serve --listen=ssl://0.0.0.0:8529 --cert=server.pem --key=server.key`,
	RunE: runAgencyServe,
}

var agencyShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask every server watching the agency to shut down",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgency(func(ctx context.Context, c agency.Client) error {
			if err := c.Write(ctx, agency.ShutdownKey, "true"); err != nil {
				return err
			}
			fmt.Println("shutdown requested")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(agencyCmd)
	agencyCmd.AddCommand(agencyServeCmd, agencyShutdownCmd)

	agencyServeCmd.Flags().StringVarP(&listenSpec, "listen", "l", "tcp://127.0.0.1:8529", "Endpoint to serve on")
	agencyServeCmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate (ssl:// endpoints)")
	agencyServeCmd.Flags().StringVar(&keyFile, "key", "", "TLS key (ssl:// endpoints)")
}

func runAgencyServe(cmd *cobra.Command, args []string) error {
	if err := initLogging(true); err != nil {
		return err
	}

	agencySpec = listenSpec
	ep, err := agencyEndpoint()
	if err != nil {
		return err
	}

	var opts []grpc.ServerOption
	if ep.IsSSL() {
		creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("loading TLS material: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	srv, err := transport.NewGRPC(ep, agency.NewMemoryStore(), opts...)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	return srv.Stop()
}

// withAgency dials the configured agency for a one-shot command
func withAgency(fn func(ctx context.Context, c agency.Client) error) error {
	ep, err := agencyEndpoint()
	if err != nil {
		return err
	}
	client, err := transport.Dial(ep)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, client)
}

// Package transport exposes an agency over gRPC and provides the matching
// client, so that servers in separate processes can share one agency.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

var ErrNotStarted = errors.New("transport: server not started")

type GRPC struct {
	ep   endpoint.Endpoint
	srv  *grpc.Server
	lis  net.Listener
	svc  *AgencyService
	done chan struct{}

	stopOnce sync.Once
}

func (g *GRPC) setupListener() (net.Listener, error) {
	if g.ep.Domain == endpoint.DomainUnix {
		// a stale socket file from a previous run blocks Listen
		_ = os.Remove(g.ep.Path)
	}
	lis, err := net.Listen(g.ep.Network(), g.ep.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", g.ep, err)
	}
	return lis, nil
}

// Start binds the listener and serves in the background. Bind errors are
// returned here; serve errors after that are logged.
func (g *GRPC) Start() error {
	lis, err := g.setupListener()
	if err != nil {
		return err
	}
	g.lis = lis

	g.srv.RegisterService(&agencyServiceDesc, g.svc)

	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)

	logger.Infof("agency service listening on %s", g.Addr())
	go func() {
		if err := g.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Errorf("agency service on %s: %v", g.ep, err)
		}
	}()
	return nil
}

// Addr returns the bound endpoint; a ":0" port is resolved once started
func (g *GRPC) Addr() endpoint.Endpoint {
	if g.lis == nil || g.ep.Domain == endpoint.DomainUnix {
		return g.ep
	}
	if tcp, ok := g.lis.Addr().(*net.TCPAddr); ok {
		return g.ep.WithPort(tcp.Port)
	}
	return g.ep
}

// Stop ends open watch streams and then stops gracefully
func (g *GRPC) Stop() error {
	if g.lis == nil {
		return ErrNotStarted
	}
	g.stopOnce.Do(func() {
		close(g.done)
		g.srv.GracefulStop()
		logger.Infof("agency service on %s stopped", g.ep)
	})
	return nil
}

// NewGRPC serves store on ep. Options are passed to grpc.NewServer, which is
// where TLS credentials for ssl:// endpoints go.
func NewGRPC(ep endpoint.Endpoint, store agency.Client, opts ...grpc.ServerOption) (*GRPC, error) {
	if ep.Domain == endpoint.DomainUnknown {
		return nil, fmt.Errorf("%w: %v", endpoint.ErrInvalidEndpoint, ep)
	}
	if store == nil {
		return nil, fmt.Errorf("agency store must be provided")
	}

	done := make(chan struct{})
	return &GRPC{
		ep:   ep,
		srv:  grpc.NewServer(opts...),
		svc:  &AgencyService{store: store, done: done},
		done: done,
	}, nil
}

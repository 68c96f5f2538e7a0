package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

const (
	watchRetryAttempts = 10
	watchRetryDelay    = 50 * time.Millisecond
	watchRetryMaxDelay = 2 * time.Second
)

var errClientClosed = errors.New("agency client closed")

// Client is an agency.Client backed by a remote agency service
type Client struct {
	ep   endpoint.Endpoint
	conn *grpc.ClientConn
}

var _ agency.Client = (*Client)(nil)

// Dial connects lazily to the agency at ep. ssl:// endpoints use TLS with
// the host's roots unless opts carry other credentials.
func Dial(ep endpoint.Endpoint, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if ep.IsSSL() {
		creds = credentials.NewTLS(&tls.Config{
			ServerName: ep.Host,
			MinVersion: tls.VersionTLS12,
		})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(ep.Target(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing agency at %s: %w", ep, err)
	}
	return &Client{ep: ep, conn: conn}, nil
}

func (c *Client) Endpoint() endpoint.Endpoint {
	return c.ep
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Read(ctx context.Context, key string) (string, error) {
	resp := new(structpb.Struct)
	req := message("key", structpb.NewStringValue(key))
	if err := c.conn.Invoke(ctx, readMethod, req, resp); err != nil {
		return "", fromStatus(err)
	}
	return field(resp, "value"), nil
}

func (c *Client) Write(ctx context.Context, key, value string) error {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"value": structpb.NewStringValue(value),
	}}
	return fromStatus(c.conn.Invoke(ctx, writeMethod, req, new(structpb.Struct)))
}

func (c *Client) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"old":   structpb.NewStringValue(old),
		"value": structpb.NewStringValue(value),
	}}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, casMethod, req, resp); err != nil {
		return false, fromStatus(err)
	}
	return resp.GetFields()["swapped"].GetBoolValue(), nil
}

// Watch opens a stream and waits for the server's ack before returning.
// Events are delivered from a background goroutine until ctx is done or the
// client is closed. A broken stream (for example an agency restart) is
// reopened with backoff; after a reopen fn receives one event with Index 0,
// since writes made while the stream was down are not replayed.
func (c *Client) Watch(ctx context.Context, key string, fn func(agency.Event)) error {
	stream, err := c.openWatch(ctx, key)
	if err != nil {
		return err
	}
	go c.follow(ctx, key, stream, fn)
	return nil
}

func (c *Client) openWatch(ctx context.Context, key string) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, &agencyServiceDesc.Streams[0], watchMethod)
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(message("key", structpb.NewStringValue(key))); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}

	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		return nil, fromStatus(err)
	}
	if !ack.GetFields()["ack"].GetBoolValue() {
		return nil, fmt.Errorf("watch on %s: missing ack", key)
	}
	return stream, nil
}

func (c *Client) follow(ctx context.Context, key string, stream grpc.ClientStream, fn func(agency.Event)) {
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if err == nil {
			fn(parseEvent(msg))
			continue
		}
		if ctx.Err() != nil || c.closed() {
			return
		}
		if !errors.Is(err, io.EOF) {
			logger.Warnf("watch on %s broke: %v", key, fromStatus(err))
		}

		if stream = c.reopenWatch(ctx, key); stream == nil {
			return
		}
		logger.Infof("watch on %s re-established", key)
		fn(agency.Event{Key: key})
	}
}

// reopenWatch retries until a stream is open, ctx is done or the client is
// closed. It returns nil in the latter two cases.
func (c *Client) reopenWatch(ctx context.Context, key string) grpc.ClientStream {
	var stream grpc.ClientStream
	for ctx.Err() == nil && !c.closed() {
		err := retry.Do(
			func() error {
				if c.closed() {
					return retry.Unrecoverable(errClientClosed)
				}
				s, err := c.openWatch(ctx, key)
				if err != nil {
					return err
				}
				stream = s
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(watchRetryAttempts),
			retry.Delay(watchRetryDelay),
			retry.MaxDelay(watchRetryMaxDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err == nil {
			return stream
		}
		if ctx.Err() == nil && !c.closed() {
			logger.Warnf("watch on %s still down after %d attempts: %v", key, watchRetryAttempts, err)
		}
	}
	return nil
}

func (c *Client) closed() bool {
	return c.conn.GetState() == connectivity.Shutdown
}

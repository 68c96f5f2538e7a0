package transport

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

/*
The agency service is small enough that its messages are plain
google.protobuf.Struct values instead of generated types:

	Read            {key}                -> {value}
	Write           {key, value}         -> {}
	CompareAndSwap  {key, old, value}    -> {swapped}
	Watch           {key}                -> stream of {ack} then {key, value, index}

The first message on a Watch stream is an ack sent once the watch is
registered, so that a client sees registration failures synchronously.
Indexes travel as decimal strings because Struct numbers are doubles.
*/

const (
	serviceName = "agency.v1.Agency"

	readMethod  = "/" + serviceName + "/Read"
	writeMethod = "/" + serviceName + "/Write"
	casMethod   = "/" + serviceName + "/CompareAndSwap"
	watchMethod = "/" + serviceName + "/Watch"

	watchBuffer = 64
)

// agencyServer is the HandlerType of the service description
type agencyServer interface {
	Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Write(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CompareAndSwap(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Watch(req *structpb.Struct, stream grpc.ServerStream) error
}

var agencyServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*agencyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: unaryHandler(readMethod, agencyServer.Read)},
		{MethodName: "Write", Handler: unaryHandler(writeMethod, agencyServer.Write)},
		{MethodName: "CompareAndSwap", Handler: unaryHandler(casMethod, agencyServer.CompareAndSwap)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "agency/v1/agency.proto",
}

type unaryFunc func(agencyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryFunc) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(agencyServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(agencyServer), ctx, req.(*structpb.Struct))
		})
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(agencyServer).Watch(req, stream)
}

// AgencyService serves an agency.Client over gRPC
type AgencyService struct {
	store agency.Client

	// done is closed when the owning server stops so open watch streams end
	done <-chan struct{}
}

func (s *AgencyService) Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value, err := s.store.Read(ctx, field(req, "key"))
	if err != nil {
		return nil, toStatus(err)
	}
	return message("value", structpb.NewStringValue(value)), nil
}

func (s *AgencyService) Write(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.store.Write(ctx, field(req, "key"), field(req, "value")); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *AgencyService) CompareAndSwap(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	swapped, err := s.store.CompareAndSwap(ctx, field(req, "key"), field(req, "old"), field(req, "value"))
	if err != nil {
		return nil, toStatus(err)
	}
	return message("swapped", structpb.NewBoolValue(swapped)), nil
}

func (s *AgencyService) Watch(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	key := field(req, "key")

	events := make(chan agency.Event, watchBuffer)
	err := s.store.Watch(ctx, key, func(ev agency.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return toStatus(err)
	}
	if err := stream.SendMsg(message("ack", structpb.NewBoolValue(true))); err != nil {
		return err
	}
	logger.Debugf("watch on %s opened", key)

	for {
		select {
		case <-ctx.Done():
			logger.Debugf("watch on %s closed", key)
			return nil
		case <-s.done:
			return nil
		case ev := <-events:
			if err := stream.SendMsg(eventMessage(ev)); err != nil {
				return err
			}
		}
	}
}

func field(m *structpb.Struct, name string) string {
	return m.GetFields()[name].GetStringValue()
}

func message(name string, v *structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{name: v}}
}

func eventMessage(ev agency.Event) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":   structpb.NewStringValue(ev.Key),
		"value": structpb.NewStringValue(ev.Value),
		"index": structpb.NewStringValue(strconv.FormatUint(ev.Index, 10)),
	}}
}

func parseEvent(m *structpb.Struct) agency.Event {
	index, _ := strconv.ParseUint(field(m, "index"), 10, 64)
	return agency.Event{Key: field(m, "key"), Value: field(m, "value"), Index: index}
}

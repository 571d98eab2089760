package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Pappt04/Lilyoutube-server/gossip"
)

const (
	serviceName    = "viewsync.v1.ReplicaSync"
	exchangeMethod = "/" + serviceName + "/Exchange"
)

// ExchangeHandler is the server side of a snapshot exchange, implemented by
// gossip.Synchronizer.
type ExchangeHandler interface {
	HandleExchange(ctx context.Context, incoming gossip.Snapshot) (gossip.Snapshot, error)
}

// replicaSyncServiceDesc describes the ReplicaSync service by hand; requests
// and replies are gossip.Snapshot values encoded with the JSON codec.
var replicaSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ExchangeHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    exchangeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "viewsync/v1/replica_sync",
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(gossip.Snapshot)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		out, err := srv.(ExchangeHandler).HandleExchange(ctx, *req.(*gossip.Snapshot))
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return &out, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: exchangeMethod}
	return interceptor(ctx, in, info, call)
}

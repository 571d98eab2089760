package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/Pappt04/Lilyoutube-server/gossip"
)

// GRPC serves the ReplicaSync service for one node.
type GRPC struct {
	addr    string
	srv     *grpc.Server
	lis     net.Listener
	nodeID  string
	handler ExchangeHandler
	logger  logrus.FieldLogger

	stopOnce sync.Once
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

func (g *GRPC) setupServices() {
	g.srv.RegisterService(&replicaSyncServiceDesc, g.handler)
}

// Start binds the listener synchronously, so a port already in use is
// reported to the caller, then serves in a background goroutine.
func (g *GRPC) Start() error {
	lis, err := g.setupTcp()
	if err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	}
	g.lis = lis

	g.setupServices()

	go func() {
		if err := g.srv.Serve(lis); err != nil {
			g.logger.WithError(err).Error("gRPC server stopped serving")
		}
	}()
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (g *GRPC) Addr() string {
	if g.lis == nil {
		return g.addr
	}
	return g.lis.Addr().String()
}

// Stop drains in-flight exchanges for up to timeout, then forces the server
// down.
func (g *GRPC) Stop(timeout time.Duration) error {
	g.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			g.srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			g.srv.Stop()
		}
	})
	return nil
}

func NewGRPC(addr string, nodeID string, handler ExchangeHandler, logger logrus.FieldLogger) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	if nodeID == "" {
		return nil, fmt.Errorf("nodeID must be provided")
	}
	if handler == nil {
		return nil, fmt.Errorf("exchange handler must be provided")
	}

	g := &GRPC{
		addr:    addr,
		nodeID:  nodeID,
		handler: handler,
		logger:  logger,
	}
	g.srv = grpc.NewServer(grpc.UnaryInterceptor(g.unaryInterceptor))
	return g, nil
}

func (g *GRPC) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := logrus.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start),
	}
	if snap, ok := req.(*gossip.Snapshot); ok {
		fields["peer"] = snap.SourceReplica
	}
	if err != nil {
		g.logger.WithFields(fields).WithError(err).Warn("gRPC request failed")
	} else {
		g.logger.WithFields(fields).Debug("gRPC request processed")
	}
	return resp, err
}

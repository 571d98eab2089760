package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/peer"
)

// GRPCClient exchanges snapshots over gRPC, keeping one connection per peer
// address.
type GRPCClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPCClient() *GRPCClient {
	return &GRPCClient{conns: make(map[string]*grpc.ClientConn)}
}

func (c *GRPCClient) conn(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[address]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	c.conns[address] = cc
	return cc, nil
}

func (c *GRPCClient) Exchange(ctx context.Context, p peer.PeerNode, local gossip.Snapshot) (gossip.Snapshot, error) {
	cc, err := c.conn(p.Address)
	if err != nil {
		return gossip.Snapshot{}, fmt.Errorf("dial %s: %w: %w", p.Address, gossip.ErrPeerUnreachable, err)
	}

	var remote gossip.Snapshot
	if err := cc.Invoke(ctx, exchangeMethod, &local, &remote); err != nil {
		return gossip.Snapshot{}, classifyStatus(p.Address, err)
	}
	return remote, nil
}

// Forget closes and drops the connection to a removed peer.
func (c *GRPCClient) Forget(address string) {
	c.mu.Lock()
	cc, ok := c.conns[address]
	delete(c.conns, address)
	c.mu.Unlock()
	if ok {
		_ = cc.Close()
	}
}

func (c *GRPCClient) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*grpc.ClientConn)
	c.mu.Unlock()

	var errs []error
	for _, cc := range conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func classifyStatus(address string, err error) error {
	if status.Code(err) == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("exchange with %s: %w: %w", address, gossip.ErrPeerTimeout, err)
	}
	return fmt.Errorf("exchange with %s: %w: %w", address, gossip.ErrPeerUnreachable, err)
}

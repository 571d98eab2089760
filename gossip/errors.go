package gossip

import (
	"context"
	"errors"
	"fmt"
)

// Exchange failures. They feed peer health and logs and are never returned to
// clients of the HTTP API.
var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrPeerTimeout     = errors.New("peer exchange timed out")
)

// classify wraps a transport error with ErrPeerTimeout or ErrPeerUnreachable
// unless the transport already did.
func classify(ctx context.Context, peerID string, err error) error {
	switch {
	case errors.Is(err, ErrPeerTimeout), errors.Is(err, ErrPeerUnreachable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("exchange with %s: %w: %w", peerID, ErrPeerTimeout, err)
	default:
		return fmt.Errorf("exchange with %s: %w: %w", peerID, ErrPeerUnreachable, err)
	}
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/peer"
)

// SyncPath is the HTTP route serving snapshot exchanges.
const SyncPath = "/api/internal/views/sync"

// HTTPClient exchanges snapshots with a peer's HTTP API. Timeouts come from
// the caller's context.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{client: client}
}

func (c *HTTPClient) Exchange(ctx context.Context, p peer.PeerNode, local gossip.Snapshot) (gossip.Snapshot, error) {
	body, err := json.Marshal(local)
	if err != nil {
		return gossip.Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(p.Address)+SyncPath, bytes.NewReader(body))
	if err != nil {
		return gossip.Snapshot{}, fmt.Errorf("build request for %s: %w: %w", p.ID, gossip.ErrPeerUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return gossip.Snapshot{}, fmt.Errorf("exchange with %s: %w: %w", p.Address, gossip.ErrPeerTimeout, err)
		}
		return gossip.Snapshot{}, fmt.Errorf("exchange with %s: %w: %w", p.Address, gossip.ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return gossip.Snapshot{}, fmt.Errorf("exchange with %s: %w: status %d: %s",
			p.Address, gossip.ErrPeerUnreachable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var remote gossip.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return gossip.Snapshot{}, fmt.Errorf("decode snapshot from %s: %w: %w", p.Address, gossip.ErrPeerUnreachable, err)
	}
	return remote, nil
}

func baseURL(address string) string {
	address = strings.TrimRight(address, "/")
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}

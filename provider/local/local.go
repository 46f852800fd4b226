// Package local connects a gencache client to a server in the same
// process, bypassing the HTTP transport entirely.
package local

import (
	"context"

	"github.com/unkn0wn-root/gencache/provider"
	"github.com/unkn0wn-root/gencache/server"
)

// Provider calls straight into a server.Server. All protocol guarantees
// come from the server; this wrapper adds nothing but the interface.
type Provider struct {
	srv *server.Server
}

// New wraps srv. The server's lifecycle stays with its creator: closing
// the provider (or the cache above it) does not close the server.
func New(srv *server.Server) *Provider {
	return &Provider{srv: srv}
}

func (p *Provider) Get(ctx context.Context, namespace string, digest [32]byte, assign bool) (provider.Status, error) {
	return p.srv.Get(ctx, namespace, digest, assign)
}

func (p *Provider) Heartbeat(ctx context.Context, assignmentID int64) error {
	return p.srv.Heartbeat(ctx, assignmentID)
}

func (p *Provider) Set(ctx context.Context, assignmentID int64, value []byte) error {
	return p.srv.Set(ctx, assignmentID, value)
}

func (p *Provider) Close() error { return nil }

var _ provider.Provider = (*Provider)(nil)

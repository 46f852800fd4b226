// Package remote connects a gencache client to a server over HTTP.
//
// The server address comes either from an explicit Addr or from the
// discovery manifest a running server writes into its store root. Calls
// are retried on transport failures and 5xx responses; protocol
// rejections (409, 413) and other 4xx answers are terminal.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/unkn0wn-root/gencache/internal/rpc"
	"github.com/unkn0wn-root/gencache/provider"
	"github.com/unkn0wn-root/gencache/store"
)

// Options configure a remote provider. Exactly one of Root or Addr is
// required.
type Options struct {
	// Root is a store root holding a discovery manifest. The manifest
	// is read once, at construction.
	Root string

	// Addr is a direct "host:port" (or full URL) of the server.
	Addr string

	// HTTPClient overrides the transport. Defaults to a client with a
	// 10s request timeout.
	HTTPClient *http.Client

	// RetryAttempts is the total number of tries per call, first
	// included. 0 => 3.
	RetryAttempts int

	// RetryDelay is the fixed pause between tries. 0 => 50ms.
	RetryDelay time.Duration
}

type Provider struct {
	base     string
	hc       *http.Client
	attempts uint
	delay    time.Duration
}

// New resolves the server address and builds the provider. No connection
// is opened until the first call.
func New(opts Options) (*Provider, error) {
	if (opts.Root == "") == (opts.Addr == "") {
		return nil, fmt.Errorf("gencache: exactly one of Root or Addr is required")
	}

	addr := opts.Addr
	if addr == "" {
		m, err := store.ReadManifest(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("discover server: %w", err)
		}
		addr = m.Addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Provider{
		base:     strings.TrimRight(addr, "/"),
		hc:       hc,
		attempts: uint(attempts),
		delay:    delay,
	}, nil
}

func (p *Provider) retrier(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(transient),
	}
}

// transient reports whether a call is worth retrying. 4xx answers are
// protocol outcomes, not failures; everything else might heal.
func transient(err error) bool {
	var se *rpc.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// stale maps a 409 onto the protocol sentinel.
func stale(err error) error {
	var se *rpc.StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		return provider.ErrStaleAssignment
	}
	return err
}

func (p *Provider) Get(ctx context.Context, namespace string, digest [32]byte, assign bool) (provider.Status, error) {
	req := rpc.GetRequest{Namespace: namespace, Digest: digest[:], Assign: assign}
	resp, err := retry.NewWithData[rpc.GetResponse](p.retrier(ctx)...).Do(func() (rpc.GetResponse, error) {
		var out rpc.GetResponse
		err := rpc.PostJSON(ctx, p.hc, p.base+rpc.PathGet, req, &out)
		return out, err
	})
	if err != nil {
		return provider.Status{}, err
	}
	st, err := provider.ParseState(resp.State)
	if err != nil {
		return provider.Status{}, err
	}
	return provider.Status{State: st, AssignmentID: resp.AssignmentID, Value: resp.Value}, nil
}

func (p *Provider) Heartbeat(ctx context.Context, assignmentID int64) error {
	err := retry.New(p.retrier(ctx)...).Do(func() error {
		return rpc.PostJSON(ctx, p.hc, p.base+rpc.PathHeartbeat, rpc.HeartbeatRequest{AssignmentID: assignmentID}, nil)
	})
	return stale(err)
}

func (p *Provider) Set(ctx context.Context, assignmentID int64, value []byte) error {
	err := retry.New(p.retrier(ctx)...).Do(func() error {
		return rpc.PostJSON(ctx, p.hc, p.base+rpc.PathSet, rpc.SetRequest{AssignmentID: assignmentID, Value: value}, nil)
	})
	return stale(err)
}

func (p *Provider) Close() error {
	p.hc.CloseIdleConnections()
	return nil
}

var _ provider.Provider = (*Provider)(nil)

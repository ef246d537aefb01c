// Package discovery finds peers a node can join.
package discovery

import (
	"context"
	"errors"
)

// ErrNoPeers is returned when a resolver yields no address other than the
// caller's own.
var ErrNoPeers = errors.New("no peers found")

// Resolver returns the addresses (host:port) of live cluster members.
type Resolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Static resolves to a fixed list of addresses.
type Static []string

// Resolve returns a copy of the list.
func (s Static) Resolve(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s...), nil
}

// Peers returns the resolved addresses other than self, in resolver order.
func Peers(ctx context.Context, r Resolver, self string) ([]string, error) {
	addrs, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	peers := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr != self {
			peers = append(peers, addr)
		}
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	return peers, nil
}

// PickPeer returns the first resolved address that is not self.
func PickPeer(ctx context.Context, r Resolver, self string) (string, error) {
	peers, err := Peers(ctx, r, self)
	if err != nil {
		return "", err
	}
	return peers[0], nil
}

// Package client addresses a cluster through its hash ring: each request is
// sent to the node that owns the key.
package client

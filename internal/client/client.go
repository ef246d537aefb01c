package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dht/internal/protocol"
	"dht/internal/ring"
	"dht/internal/transport"
)

// ErrNoNodes is returned when the client's ring has no members.
var ErrNoNodes = errors.New("no nodes in ring")

// Client routes requests to the node that owns each key.
type Client struct {
	ring    *ring.Ring
	timeout time.Duration
	log     *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request/reply call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		c.log = logrus.NewEntry(logger)
	}
}

// New creates a client over the given ring. The ring is shared, not copied:
// membership changes made by the caller are seen by later requests.
func New(r *ring.Ring, opts ...Option) *Client {
	c := &Client{
		ring:    r,
		timeout: transport.DefaultCallTimeout,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "client")
	return c
}

// Ring returns the ring used for routing.
func (c *Client) Ring() *ring.Ring {
	return c.ring
}

// Owner returns the node responsible for key.
func (c *Client) Owner(key string) (string, error) {
	node, ok := c.ring.GetNode(key)
	if !ok {
		return "", ErrNoNodes
	}
	return node, nil
}

// Get fetches key from its owner. An absent key yields "".
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	owner, err := c.Owner(key)
	if err != nil {
		return "", err
	}
	c.log.WithFields(logrus.Fields{"key": key, "owner": owner}).Debug("Get")

	reply, err := c.call(ctx, owner, protocol.Get{Key: key})
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// Put sends key/value to its owner. Puts are fire-and-forget datagrams.
func (c *Client) Put(ctx context.Context, key, value string) error {
	owner, err := c.Owner(key)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"key": key, "owner": owner}).Debug("Put")
	return c.send(ctx, owner, protocol.Put{Key: key, Value: value})
}

// Ping probes addr and reports whether it answered with the liveness token.
func (c *Client) Ping(ctx context.Context, addr string) error {
	reply, err := c.call(ctx, addr, protocol.Ping{})
	if err != nil {
		return err
	}
	if string(reply) != protocol.Pong {
		return fmt.Errorf("unexpected ping reply from %s: %q", addr, reply)
	}
	return nil
}

// GetAll fetches the entire store of the node at addr.
func (c *Client) GetAll(ctx context.Context, addr string) (map[string]string, error) {
	reply, err := c.call(ctx, addr, protocol.GetAll{})
	if err != nil {
		return nil, err
	}
	return protocol.DecodeBulk(reply)
}

// Join tells the node at addr to join the peer at host:port. The join runs
// asynchronously on the target node.
func (c *Client) Join(ctx context.Context, addr, host string, port int) error {
	return c.send(ctx, addr, protocol.Join{Host: host, Port: port})
}

func (c *Client) call(ctx context.Context, addr string, msg protocol.Message) ([]byte, error) {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		return nil, err
	}
	reply, err := transport.Call(ctx, addr, payload, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", msg.Command(), addr, err)
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, addr string, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if err := transport.Send(addr, payload); err != nil {
		return fmt.Errorf("%s to %s: %w", msg.Command(), addr, err)
	}
	return nil
}

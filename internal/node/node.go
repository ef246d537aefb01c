package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"dht/internal/config"
	"dht/internal/protocol"
	"dht/internal/ring"
	"dht/internal/storage"
	"dht/internal/transport"
)

var (
	// ErrNotOwner is returned when ownership checks are on and the ring
	// assigns the key to another node.
	ErrNotOwner = errors.New("key owned by another node")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("node already started")
)

// Node is a single member of the cluster: a local store served over a
// datagram socket, plus the join protocol that moves data between peers.
type Node struct {
	id    ring.Key
	addr  string
	cfg   config.Config
	conn  *transport.Conn
	store storage.Store
	ring  *ring.Ring
	log   *logrus.Entry

	state   atomic.Int32 // JoinState
	started atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option customizes a Node.
type Option func(*Node)

// WithLogger sets the logger the node writes to.
func WithLogger(logger *logrus.Logger) Option {
	return func(n *Node) {
		n.log = logger.WithFields(n.log.Data)
	}
}

// WithStore replaces the default in-memory store.
func WithStore(store storage.Store) Option {
	return func(n *Node) {
		n.store = store
	}
}

// New creates a node serving from conn. Its identity is the hash of the
// advertised address cfg.Addr(), which peers must use to reach it. The node
// does not read from conn until Start is called.
func New(cfg config.Config, conn *transport.Conn, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	addr := cfg.Addr()
	id := ring.Hash(addr)
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		id:     id,
		addr:   addr,
		cfg:    cfg,
		conn:   conn,
		store:  storage.NewInMemoryStore(),
		ring:   ring.New(cfg.Replicas, addr),
		ctx:    ctx,
		cancel: cancel,
		log: logrus.WithFields(logrus.Fields{
			"node": addr,
			"id":   id.String()[:8],
		}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start launches the serve loop.
func (n *Node) Start() error {
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	n.wg.Add(1)
	go n.serve()
	n.log.WithField("listen", n.conn.LocalAddr().String()).Info("Node started")
	return nil
}

// Stop closes the socket and waits for the serve loop and any running join
// to finish. It is safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()
		if err := n.conn.Close(); err != nil {
			n.log.WithError(err).Warn("Failed to close socket")
		}
		n.wg.Wait()
		n.log.Info("Node stopped")
	})
}

// ID returns the node's ring identity.
func (n *Node) ID() ring.Key {
	return n.id
}

// Addr returns the advertised host:port.
func (n *Node) Addr() string {
	return n.addr
}

// Store returns the node's local store.
func (n *Node) Store() storage.Store {
	return n.store
}

// Ring returns the node's view of the cluster.
func (n *Node) Ring() *ring.Ring {
	return n.ring
}

// State returns the current join state.
func (n *Node) State() JoinState {
	return JoinState(n.state.Load())
}

// Get returns the local value for key, or "" if absent.
func (n *Node) Get(key string) (string, error) {
	if !n.owns(key) {
		return "", ErrNotOwner
	}
	value, _ := n.store.Get(key)
	return value, nil
}

// Put stores value under key in the local store.
func (n *Node) Put(key, value string) error {
	if !protocol.ValidToken(key) || !protocol.ValidToken(value) {
		return fmt.Errorf("%w: key and value must be non-empty without whitespace", protocol.ErrMalformed)
	}
	if !n.owns(key) {
		return ErrNotOwner
	}
	n.store.Put(key, value)
	return nil
}

// Stats is a point-in-time summary of the node.
type Stats struct {
	ID      string
	Addr    string
	Keys    int
	Members []string
	State   JoinState
}

// Stats returns a summary of the node.
func (n *Node) Stats() Stats {
	return Stats{
		ID:      n.id.String(),
		Addr:    n.addr,
		Keys:    n.store.Len(),
		Members: n.ring.Nodes(),
		State:   n.State(),
	}
}

// owns reports whether this node may serve key.
func (n *Node) owns(key string) bool {
	if !n.cfg.CheckOwnership {
		return true
	}
	owner, ok := n.ring.GetNode(key)
	return !ok || owner == n.addr
}

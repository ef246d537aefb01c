package it

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"dht/internal/admin"
	"dht/internal/client"
	"dht/internal/config"
	"dht/internal/node"
	"dht/internal/ring"
	"dht/internal/transport"
)

// Cluster represents an in-process test cluster of nodes
type Cluster struct {
	nodes    []*Node
	replicas int
	timeout  time.Duration
	logger   *logrus.Logger
	mu       sync.Mutex
}

// Node represents a single node in the test cluster
type Node struct {
	ID   string
	Addr string

	server *node.Node
	grpc   *grpc.Server
	health *health.Server
	client *admin.Client
}

// NewCluster creates a new test cluster harness. Nodes log to logger.
func NewCluster(logger *logrus.Logger) *Cluster {
	return &Cluster{
		nodes:    make([]*Node, 0),
		replicas: ring.DefaultReplicas,
		timeout:  500 * time.Millisecond,
		logger:   logger,
	}
}

// StartNode starts a node on a free loopback port with its admin service on
// an in-memory listener. If seed is not empty the node joins it.
func (c *Cluster) StartNode(ctx context.Context, nodeID string, seed string) error {
	conn, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = conn.LocalAddr().Port
	cfg.Replicas = c.replicas
	cfg.CallTimeout = c.timeout

	srv, err := node.New(cfg, conn, node.WithLogger(c.logger))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create node %s: %w", nodeID, err)
	}
	if err := srv.Start(); err != nil {
		srv.Stop()
		return fmt.Errorf("failed to start node %s: %w", nodeID, err)
	}

	lis := bufconn.Listen(1 << 20)
	gs, hs := admin.NewGRPCServer(srv, c.logger)
	go func() {
		_ = gs.Serve(lis)
	}()

	ac, err := admin.Dial("passthrough:///"+nodeID, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		gs.Stop()
		srv.Stop()
		return fmt.Errorf("failed to dial node %s: %w", nodeID, err)
	}

	n := &Node{
		ID:     nodeID,
		Addr:   srv.Addr(),
		server: srv,
		grpc:   gs,
		health: hs,
		client: ac,
	}

	if err := c.waitForReady(ctx, n, 5*time.Second); err != nil {
		n.Stop()
		return fmt.Errorf("node %s failed to become ready: %w", nodeID, err)
	}

	if seed != "" {
		if err := ac.Join(ctx, seed); err != nil {
			n.Stop()
			return fmt.Errorf("node %s failed to join %s: %w", nodeID, seed, err)
		}
	}

	c.mu.Lock()
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()
	return nil
}

// waitForReady waits for a node to be ready by checking the health service
func (c *Cluster) waitForReady(ctx context.Context, n *Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	hc := healthpb.NewHealthClient(n.client.Conn())
	for {
		healthCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := hc.Check(healthCtx, &healthpb.HealthCheckRequest{Service: admin.ServiceName})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for node %s to be ready", n.ID)
			}
		}
	}
}

// StartCluster starts size nodes named n1..nN; every node after the first
// joins n1.
func (c *Cluster) StartCluster(ctx context.Context, size int) error {
	for i := 1; i <= size; i++ {
		seed := ""
		if i > 1 {
			seed = c.GetNode("n1").Addr
		}
		if err := c.StartNode(ctx, fmt.Sprintf("n%d", i), seed); err != nil {
			c.Stop()
			return err
		}
	}
	return nil
}

// Stop stops all nodes in the cluster
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		n.Stop()
	}
	c.nodes = nil
}

// Stop stops a single node
func (n *Node) Stop() {
	n.health.Shutdown()
	n.client.Close()
	n.grpc.Stop()
	n.server.Stop()
}

// GetClient returns the admin client for a node
func (n *Node) GetClient() *admin.Client {
	return n.client
}

// Server returns the running node.
func (n *Node) Server() *node.Node {
	return n.server
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(nodeID string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == nodeID {
			return n
		}
	}
	return nil
}

// KillNode stops a node and removes it from the cluster
func (c *Cluster) KillNode(nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.nodes {
		if n.ID == nodeID {
			n.Stop()
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("node %s not found", nodeID)
}

// Client returns a ring-routed client over every live node.
func (c *Cluster) Client() *client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := ring.New(c.replicas)
	for _, n := range c.nodes {
		r.AddNode(n.Addr)
	}
	return client.New(r, client.WithTimeout(c.timeout), client.WithLogger(c.logger))
}

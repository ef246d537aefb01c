package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dht/internal/admin"
	"dht/internal/config"
	"dht/internal/discovery"
	"dht/internal/node"
	"dht/internal/transport"
)

type options struct {
	host           string
	port           int
	replicas       int
	join           string
	consulAddr     string
	service        string
	tag            string
	adminAddr      string
	timeout        time.Duration
	checkOwnership bool
	logLevel       string
	logFormat      string
}

func parseFlags() options {
	def := config.Default()
	var opt options
	flag.StringVar(&opt.host, "host", def.Host, "Advertised host; the node's ring identity is hash(host:port)")
	flag.IntVar(&opt.port, "port", def.Port, "UDP port to serve on")
	flag.IntVar(&opt.replicas, "replicas", def.Replicas, "Virtual replicas per node on the ring")
	flag.StringVar(&opt.join, "join", "", "Comma-separated peers (host:port); the first one that answers is joined on startup")
	flag.StringVar(&opt.consulAddr, "consul", "", "Consul agent address used to find and register peers")
	flag.StringVar(&opt.service, "service", "dht", "Consul service name")
	flag.StringVar(&opt.tag, "tag", "", "Consul service tag")
	flag.StringVar(&opt.adminAddr, "admin", "", "gRPC admin listen address (empty disables it)")
	flag.DurationVar(&opt.timeout, "timeout", def.CallTimeout, "Timeout for join probe and bulk transfer")
	flag.BoolVar(&opt.checkOwnership, "check-ownership", false, "Refuse get/put for keys owned by another node")
	flag.StringVar(&opt.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&opt.logFormat, "log-format", "text", "Log format (text or json)")
	flag.Parse()
	return opt
}

func main() {
	opt := parseFlags()

	logger := logrus.New()
	if err := setupLogging(logger, opt.logLevel, opt.logFormat); err != nil {
		logger.WithError(err).Fatal("Invalid logging flags")
	}

	seeds, err := config.ParseSeeds(opt.join)
	if err != nil {
		logger.WithError(err).Fatal("Invalid --join")
	}

	cfg := config.Default()
	cfg.Host = opt.host
	cfg.Port = opt.port
	cfg.Replicas = opt.replicas
	cfg.CallTimeout = opt.timeout
	cfg.CheckOwnership = opt.checkOwnership
	cfg.AdminAddr = opt.adminAddr
	cfg.Seeds = seeds
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logEntry := logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr(),
		"replicas": cfg.Replicas,
	})

	conn, err := transport.Listen(cfg.Addr())
	if err != nil {
		logEntry.WithError(err).Fatal("Failed to bind")
	}
	n, err := node.New(cfg, conn, node.WithLogger(logger))
	if err != nil {
		conn.Close()
		logEntry.WithError(err).Fatal("Failed to create node")
	}
	if err := n.Start(); err != nil {
		logEntry.WithError(err).Fatal("Failed to start node")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownAdmin := func() {}
	if cfg.AdminAddr != "" {
		lis, err := net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			n.Stop()
			logEntry.WithError(err).Fatal("Failed to listen for admin")
		}
		gs, hs := admin.NewGRPCServer(n, logger)
		go func() {
			if err := gs.Serve(lis); err != nil {
				logEntry.WithError(err).Error("Admin server stopped")
			}
		}()
		logEntry.WithField("admin", lis.Addr().String()).Info("Admin server listening")
		shutdownAdmin = func() {
			hs.Shutdown()
			gs.GracefulStop()
		}
	}

	var resolver discovery.Resolver
	var consul *discovery.Consul
	switch {
	case opt.consulAddr != "":
		consul, err = discovery.NewConsul(opt.consulAddr, opt.service, opt.tag)
		if err != nil {
			logEntry.WithError(err).Fatal("Failed to set up consul")
		}
		resolver = consul
	case len(cfg.Seeds) > 0:
		resolver = discovery.Static(cfg.Seeds)
	}

	if resolver != nil {
		_, err := joinPeer(ctx, logEntry, n, resolver)
		switch {
		case errors.Is(err, discovery.ErrNoPeers):
			logEntry.Info("No peers found, starting alone")
		case err != nil:
			logEntry.WithError(err).Warn("Could not join any peer, starting alone")
		}
	}
	if consul != nil {
		if err := consul.Register(ctx, cfg.Host, cfg.Port); err != nil {
			logEntry.WithError(err).Warn("Consul registration failed")
			consul = nil
		}
	}

	<-ctx.Done()
	logEntry.Info("Shutting down")

	if consul != nil {
		deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := consul.Deregister(deregCtx, cfg.Host, cfg.Port); err != nil {
			logEntry.WithError(err).Warn("Consul deregistration failed")
		}
		cancel()
	}
	shutdownAdmin()
	n.Stop()
}

// joinPeer tries each resolved peer other than this node in turn and stops
// at the first successful join. If none succeeds the node runs alone.
func joinPeer(ctx context.Context, logEntry *logrus.Entry, n *node.Node, r discovery.Resolver) (string, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	peers, err := discovery.Peers(resolveCtx, r, n.Addr())
	if err != nil {
		return "", err
	}

	var errs []error
	for _, peer := range peers {
		peerLog := logEntry.WithField("peer", peer)
		host, port, err := config.ParseAddr(peer)
		if err != nil {
			peerLog.WithError(err).Warn("Skipping invalid peer address")
			errs = append(errs, err)
			continue
		}
		if err := n.Join(resolveCtx, host, port); err != nil {
			peerLog.WithError(err).Warn("Join failed")
			errs = append(errs, fmt.Errorf("%s: %w", peer, err))
			continue
		}
		peerLog.Info("Joined cluster")
		return peer, nil
	}
	return "", errors.Join(errs...)
}

func setupLogging(logger *logrus.Logger, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)

	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.New("log format must be text or json")
	}
	return nil
}

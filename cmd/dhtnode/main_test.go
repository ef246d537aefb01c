package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dht/internal/config"
	"dht/internal/discovery"
	"dht/internal/node"
	"dht/internal/transport"
)

func startNode(t *testing.T, logger *logrus.Logger) *node.Node {
	t.Helper()
	conn, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = conn.LocalAddr().Port
	cfg.CallTimeout = 200 * time.Millisecond

	n, err := node.New(cfg, conn, node.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)
	return n
}

func silentAddr(t *testing.T) string {
	t.Helper()
	conn, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().String()
}

func TestJoinPeer_FallsBackToNextSeed(t *testing.T) {
	logger, _ := test.NewNullLogger()
	self := startNode(t, logger)
	peer := startNode(t, logger)

	seeds := discovery.Static{self.Addr(), silentAddr(t), "bad-address", peer.Addr()}
	joined, err := joinPeer(context.Background(), logrus.NewEntry(logger), self, seeds)
	require.NoError(t, err)
	assert.Equal(t, peer.Addr(), joined)
	assert.True(t, self.Ring().Contains(peer.Addr()))
}

func TestJoinPeer_AllSeedsFail(t *testing.T) {
	logger, hook := test.NewNullLogger()
	self := startNode(t, logger)

	seeds := discovery.Static{silentAddr(t), silentAddr(t)}
	_, err := joinPeer(context.Background(), logrus.NewEntry(logger), self, seeds)
	assert.ErrorIs(t, err, node.ErrUnreachable)
	assert.Equal(t, []string{self.Addr()}, self.Ring().Nodes())

	failed := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "Join failed" {
			failed++
		}
	}
	assert.Equal(t, 2, failed, "each seed is tried")
}

func TestJoinPeer_NoPeers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	self := startNode(t, logger)

	_, err := joinPeer(context.Background(), logrus.NewEntry(logger), self, discovery.Static{self.Addr()})
	assert.ErrorIs(t, err, discovery.ErrNoPeers)
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"text debug", "debug", "text", false},
		{"json warn", "warn", "json", false},
		{"bad level", "loud", "text", true},
		{"bad format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			err := setupLogging(logger, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			lvl, _ := logrus.ParseLevel(tt.level)
			assert.Equal(t, lvl, logger.GetLevel())
		})
	}
}

func TestSetupLogging_JSONFormatter(t *testing.T) {
	logger := logrus.New()
	require.NoError(t, setupLogging(logger, "info", "json"))
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

package it

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newCluster(t *testing.T) (*Cluster, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	logger, _ := test.NewNullLogger()
	cluster := NewCluster(logger)
	t.Cleanup(cluster.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return cluster, ctx
}

// orderedNodes returns n1 and n2 ordered by ring identity.
func orderedNodes(c *Cluster) (low, high *Node) {
	a, b := c.GetNode("n1"), c.GetNode("n2")
	if a.Server().ID().Less(b.Server().ID()) {
		return a, b
	}
	return b, a
}

func TestSmoke_RoutedPutGet(t *testing.T) {
	cluster, ctx := newCluster(t)
	require.NoError(t, cluster.StartCluster(ctx, 3))

	c := cluster.Client()
	keys := make([]string, 30)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		require.NoError(t, c.Put(ctx, keys[i], fmt.Sprintf("value-%d", i)))
	}

	for i, key := range keys {
		want := fmt.Sprintf("value-%d", i)
		require.Eventually(t, func() bool {
			got, err := c.Get(ctx, key)
			return err == nil && got == want
		}, 2*time.Second, 10*time.Millisecond, "key %s", key)

		// The owner's admin surface sees the same value.
		owner, err := c.Owner(key)
		require.NoError(t, err)
		for _, id := range []string{"n1", "n2", "n3"} {
			n := cluster.GetNode(id)
			if n.Addr != owner {
				continue
			}
			got, err := n.GetClient().Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestSmoke_JoinPullsFromSuccessor(t *testing.T) {
	cluster, ctx := newCluster(t)
	require.NoError(t, cluster.StartNode(ctx, "n1", ""))
	require.NoError(t, cluster.StartNode(ctx, "n2", ""))

	low, high := orderedNodes(cluster)
	require.NoError(t, low.Server().Put("shared", "low"))
	require.NoError(t, low.Server().Put("mine", "1"))
	require.NoError(t, high.Server().Put("shared", "high"))
	require.NoError(t, high.Server().Put("theirs", "2"))

	require.NoError(t, low.GetClient().Join(ctx, high.Addr))

	assert.Equal(t, map[string]string{"shared": "high", "mine": "1", "theirs": "2"}, low.Server().Store().Snapshot())
	assert.Equal(t, map[string]string{"shared": "high", "theirs": "2"}, high.Server().Store().Snapshot())

	st, err := low.GetClient().Stats(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{low.Addr, high.Addr}, st.Members)
	assert.Equal(t, 3, st.Keys)
}

func TestSmoke_JoinPushesToPredecessor(t *testing.T) {
	cluster, ctx := newCluster(t)
	require.NoError(t, cluster.StartNode(ctx, "n1", ""))
	require.NoError(t, cluster.StartNode(ctx, "n2", ""))

	low, high := orderedNodes(cluster)
	for i := 0; i < 20; i++ {
		require.NoError(t, high.Server().Put(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)))
	}
	before := high.Server().Store().Snapshot()

	require.NoError(t, high.GetClient().Join(ctx, low.Addr))

	require.Eventually(t, func() bool {
		return low.Server().Store().Len() == len(before)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, before, low.Server().Store().Snapshot())
	assert.Equal(t, before, high.Server().Store().Snapshot())
}

func TestSmoke_JoinKilledPeer(t *testing.T) {
	cluster, ctx := newCluster(t)
	require.NoError(t, cluster.StartNode(ctx, "n1", ""))
	require.NoError(t, cluster.StartNode(ctx, "n2", ""))

	n1 := cluster.GetNode("n1")
	gone := cluster.GetNode("n2").Addr
	require.NoError(t, n1.Server().Put("k", "v"))
	require.NoError(t, cluster.KillNode("n2"))
	assert.Nil(t, cluster.GetNode("n2"))

	err := n1.GetClient().Join(ctx, gone)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, map[string]string{"k": "v"}, n1.Server().Store().Snapshot())
	assert.False(t, n1.Server().Ring().Contains(gone))
}

func TestSmoke_StartClusterJoinsFirstNode(t *testing.T) {
	cluster, ctx := newCluster(t)
	require.NoError(t, cluster.StartCluster(ctx, 3))

	n1 := cluster.GetNode("n1").Addr
	for _, id := range []string{"n2", "n3"} {
		n := cluster.GetNode(id)
		require.NotNil(t, n)
		assert.True(t, n.Server().Ring().Contains(n1), "%s should know n1 after joining", id)
	}
	assert.Error(t, cluster.KillNode("n9"))
}

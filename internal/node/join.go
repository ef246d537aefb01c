package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"dht/internal/protocol"
	"dht/internal/ring"
	"dht/internal/transport"
)

// pushBatch is the number of puts sent to a predecessor between two
// delivery barriers.
const pushBatch = 64

var (
	// ErrUnreachable is returned when the peer does not answer the liveness probe.
	ErrUnreachable = errors.New("peer unreachable")
	// ErrJoinInProgress is returned when a join is already running on this node.
	ErrJoinInProgress = errors.New("join already in progress")
	// ErrSelfJoin is returned when a node is asked to join itself.
	ErrSelfJoin = errors.New("cannot join self")
)

// JoinState is a step of the join state machine.
type JoinState int32

const (
	Idle JoinState = iota
	Probing
	PredecessorPush
	SuccessorPull
)

// String returns the string representation of JoinState.
func (s JoinState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Probing:
		return "PROBING"
	case PredecessorPush:
		return "PREDECESSOR_PUSH"
	case SuccessorPull:
		return "SUCCESSOR_PULL"
	default:
		return "UNKNOWN"
	}
}

// Join contacts the peer at host:port and exchanges data with it.
//
// The peer is probed first; if it does not answer with the liveness token
// the join fails with ErrUnreachable and nothing changes. Otherwise the
// peer's identity is compared with ours: a numerically smaller peer is our
// predecessor and receives a copy of every local entry, a larger or equal
// peer is our successor and its whole store is pulled into ours.
func (n *Node) Join(ctx context.Context, host string, port int) error {
	peer := net.JoinHostPort(host, strconv.Itoa(port))
	if n.isSelf(peer) {
		return ErrSelfJoin
	}
	if !n.state.CompareAndSwap(int32(Idle), int32(Probing)) {
		return ErrJoinInProgress
	}
	defer n.setState(Idle)

	logEntry := n.log.WithField("peer", peer)

	sess, err := transport.Dial(peer, n.cfg.CallTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer sess.Close()

	if err := n.probe(ctx, sess); err != nil {
		logEntry.WithError(err).Warn("Peer did not respond to ping")
		return err
	}
	logEntry.Info("Peer is alive")

	peerID := ring.Hash(peer)
	if peerID.Less(n.id) {
		n.setState(PredecessorPush)
		logEntry.Info("Peer is our predecessor")
		err = n.push(ctx, logEntry, sess)
	} else {
		n.setState(SuccessorPull)
		logEntry.Info("Peer is our successor")
		err = n.pull(ctx, logEntry, sess)
	}
	if err != nil {
		return err
	}

	n.ring.AddNode(peer)
	return nil
}

// probe sends a ping and expects the liveness token back.
func (n *Node) probe(ctx context.Context, sess *transport.Session) error {
	payload, err := protocol.Marshal(protocol.Ping{})
	if err != nil {
		return err
	}
	reply, err := sess.Call(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if string(reply) != protocol.Pong {
		return fmt.Errorf("%w: unexpected probe reply %q", ErrUnreachable, truncate(reply))
	}
	return nil
}

// push sends every local entry to the predecessor as a put. The local store
// is left as is. After every pushBatch puts, and after the last one, a ping
// is sent on the same session: the peer handles datagrams in order, so its
// pong confirms that the puts before it were received and applied.
func (n *Node) push(ctx context.Context, logEntry *logrus.Entry, sess *transport.Session) error {
	entries := n.store.Snapshot()
	sent, pending := 0, 0
	interrupted := func(err error) error {
		logEntry.WithFields(logrus.Fields{"sent": sent, "total": len(entries)}).WithError(err).Error("Push interrupted")
		return fmt.Errorf("push interrupted after %d of %d entries: %w", sent, len(entries), err)
	}

	for key, value := range entries {
		payload, err := protocol.Marshal(protocol.Put{Key: key, Value: value})
		if err != nil {
			logEntry.WithField("key", key).WithError(err).Warn("Skipping entry that cannot be encoded")
			continue
		}
		if err := sess.Send(payload); err != nil {
			return interrupted(err)
		}
		pending++
		if pending == pushBatch {
			if err := n.barrier(ctx, sess); err != nil {
				return interrupted(err)
			}
			sent += pending
			pending = 0
		}
	}
	if pending > 0 {
		if err := n.barrier(ctx, sess); err != nil {
			return interrupted(err)
		}
		sent += pending
	}
	logEntry.WithField("entries", sent).Info("Pushed local data to predecessor")
	return nil
}

// barrier waits until the peer has handled every datagram sent before it.
func (n *Node) barrier(ctx context.Context, sess *transport.Session) error {
	return n.probe(ctx, sess)
}

// pull requests the successor's whole store and absorbs it. A malformed
// line aborts the transfer before anything is written.
func (n *Node) pull(ctx context.Context, logEntry *logrus.Entry, sess *transport.Session) error {
	payload, err := protocol.Marshal(protocol.GetAll{})
	if err != nil {
		return err
	}
	reply, err := sess.Call(ctx, payload)
	if err != nil {
		logEntry.WithError(err).Error("Bulk transfer request failed")
		return fmt.Errorf("bulk transfer from %s: %w", sess.RemoteAddr(), err)
	}

	entries, err := protocol.DecodeBulk(reply)
	if err != nil {
		logEntry.WithError(err).Error("Aborting bulk transfer")
		return err
	}
	n.store.Absorb(entries)
	logEntry.WithField("entries", len(entries)).Info("Pulled data from successor")
	return nil
}

// isSelf reports whether peer names this node, either by its advertised
// address or by the address its socket is bound to.
func (n *Node) isSelf(peer string) bool {
	if peer == n.addr {
		return true
	}
	raddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return false
	}
	local := n.conn.LocalAddr()
	if raddr.Port != local.Port {
		return false
	}
	if local.IP.IsUnspecified() {
		return raddr.IP.IsLoopback() || raddr.IP.IsUnspecified()
	}
	return raddr.IP.Equal(local.IP)
}

func (n *Node) setState(s JoinState) {
	n.state.Store(int32(s))
}

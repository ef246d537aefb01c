package node

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"dht/internal/protocol"
	"dht/internal/transport"
)

// serve handles one datagram at a time until the socket is closed.
func (n *Node) serve() {
	defer n.wg.Done()

	for {
		req, err := n.conn.Receive()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.WithError(err).Warn("Receive failed")
			continue
		}
		n.handle(req)
	}
}

// handle decodes and dispatches a single request. A bad request is logged
// and dropped; it never ends the serve loop.
func (n *Node) handle(req transport.Request) {
	logEntry := n.log.WithField("from", req.From.String())
	defer func() {
		if r := recover(); r != nil {
			logEntry.WithField("panic", r).Error("Request handler panicked")
		}
	}()

	msg, err := protocol.Unmarshal(req.Payload)
	if err != nil {
		logEntry.WithError(err).Warnf("Ignoring datagram %q", truncate(req.Payload))
		return
	}

	switch m := msg.(type) {
	case protocol.Get:
		value, err := n.Get(m.Key)
		if err != nil {
			logEntry.WithFields(logrus.Fields{"key": m.Key}).WithError(err).Warn("Refusing get")
			n.reply(logEntry, req, nil)
			return
		}
		logEntry.WithField("key", m.Key).Debug("Get")
		n.reply(logEntry, req, []byte(value))
	case protocol.Put:
		if err := n.Put(m.Key, m.Value); err != nil {
			logEntry.WithFields(logrus.Fields{"key": m.Key}).WithError(err).Warn("Refusing put")
			return
		}
		logEntry.WithField("key", m.Key).Debug("Put")
	case protocol.Ping:
		n.reply(logEntry, req, []byte(protocol.Pong))
	case protocol.Join:
		n.joinAsync(m)
	case protocol.GetAll:
		payload, dropped := protocol.EncodeBulk(n.store.Snapshot(), transport.MaxDatagramSize)
		if dropped > 0 {
			logEntry.WithField("dropped", dropped).Warn("Bulk transfer truncated to fit one datagram")
		}
		logEntry.WithField("bytes", len(payload)).Debug("Serving bulk transfer")
		n.reply(logEntry, req, payload)
	default:
		logEntry.Warnf("Unhandled message type %T", msg)
	}
}

// joinAsync runs a join requested over the wire without blocking the serve
// loop, so the node keeps answering the peer's probe and transfer calls.
func (n *Node) joinAsync(m protocol.Join) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Join(n.ctx, m.Host, m.Port); err != nil {
			n.log.WithField("peer", m.Addr()).WithError(err).Warn("Join failed")
		}
	}()
}

func (n *Node) reply(logEntry *logrus.Entry, req transport.Request, payload []byte) {
	if err := n.conn.Reply(req.From, payload); err != nil {
		logEntry.WithError(err).Warn("Reply failed")
	}
}

func truncate(payload []byte) string {
	const max = 64
	if len(payload) > max {
		return string(payload[:max]) + "..."
	}
	return string(payload)
}

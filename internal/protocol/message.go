package protocol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
)

// Command names on the wire.
const (
	CmdGet    = "get"
	CmdPut    = "put"
	CmdPing   = "ping"
	CmdJoin   = "join"
	CmdGetAll = "get_all"
)

// Pong is the liveness token sent in reply to Ping.
const Pong = "pong"

var (
	// ErrUnknownCommand is returned when the first token names no command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformed is returned when a known command has bad arguments.
	ErrMalformed = errors.New("malformed message")
)

// Message is a decoded request. The concrete type is one of Get, Put, Ping,
// Join or GetAll.
type Message interface {
	// Command returns the wire command name.
	Command() string
	tokens() []string
}

// Get asks for the value stored under Key.
type Get struct {
	Key string
}

// Put stores Value under Key. It has no reply.
type Put struct {
	Key   string
	Value string
}

// Ping probes liveness; the reply is Pong.
type Ping struct{}

// Join asks the receiving node to join the peer at Host:Port.
type Join struct {
	Host string
	Port int
}

// GetAll asks for the receiver's entire store as a bulk transfer.
type GetAll struct{}

func (Get) Command() string { return CmdGet }
func (Put) Command() string { return CmdPut }
func (Ping) Command() string { return CmdPing }
func (Join) Command() string { return CmdJoin }
func (GetAll) Command() string { return CmdGetAll }

func (m Get) tokens() []string { return []string{CmdGet, m.Key} }
func (m Put) tokens() []string { return []string{CmdPut, m.Key, m.Value} }
func (Ping) tokens() []string { return []string{CmdPing} }
func (m Join) tokens() []string { return []string{CmdJoin, m.Host, strconv.Itoa(m.Port)} }
func (GetAll) tokens() []string { return []string{CmdGetAll} }

// Addr returns the peer address in host:port form.
func (m Join) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Marshal encodes m into a datagram payload. Arguments that are empty or
// contain whitespace cannot be represented and are rejected.
func Marshal(m Message) ([]byte, error) {
	toks := m.tokens()
	for _, tok := range toks[1:] {
		if !ValidToken(tok) {
			return nil, fmt.Errorf("%w: %s argument %q", ErrMalformed, m.Command(), tok)
		}
	}
	return []byte(strings.Join(toks, " ")), nil
}

// Unmarshal decodes a datagram payload.
func Unmarshal(payload []byte) (Message, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case CmdGet:
		if len(args) != 1 {
			return nil, arity(cmd, 1, len(args))
		}
		return Get{Key: args[0]}, nil
	case CmdPut:
		if len(args) != 2 {
			return nil, arity(cmd, 2, len(args))
		}
		return Put{Key: args[0], Value: args[1]}, nil
	case CmdPing:
		if len(args) != 0 {
			return nil, arity(cmd, 0, len(args))
		}
		return Ping{}, nil
	case CmdJoin:
		if len(args) != 2 {
			return nil, arity(cmd, 2, len(args))
		}
		port, err := ParsePort(args[1])
		if err != nil {
			return nil, err
		}
		return Join{Host: args[0], Port: port}, nil
	case CmdGetAll:
		if len(args) != 0 {
			return nil, arity(cmd, 0, len(args))
		}
		return GetAll{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// ParsePort parses a decimal port in [1, 65535].
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrMalformed, s)
	}
	return port, nil
}

// ValidToken reports whether s can travel as a single wire token.
func ValidToken(s string) bool {
	return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
}

func arity(cmd string, want, got int) error {
	return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrMalformed, cmd, want, got)
}

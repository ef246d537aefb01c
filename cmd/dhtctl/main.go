// Command dhtctl talks to dht nodes: admin calls over gRPC, and routed
// get/put over the datagram protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dht/internal/admin"
	"dht/internal/client"
	"dht/internal/config"
	"dht/internal/ring"
)

const usage = `usage: dhtctl [flags] <command> [args]

Admin commands (need --admin):
  owner <key>        node owning key
  local <key>        value in the node's local store
  join <host:port>   make the node join a peer
  stats              node summary

Routed commands (need --nodes):
  get <key>
  put <key> <value>
  ping <host:port>
`

func main() {
	adminAddr := flag.String("admin", "", "gRPC admin address of a node")
	nodes := flag.String("nodes", "", "Comma-separated node addresses (host:port) forming the ring")
	replicas := flag.Int("replicas", ring.DefaultReplicas, "Virtual replicas per node")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := options{admin: *adminAddr, nodes: *nodes, replicas: *replicas, timeout: *timeout, out: os.Stdout}
	if err := run(ctx, opts, args); err != nil {
		logrus.WithField("command", args[0]).WithError(err).Error("Command failed")
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// errUsage marks errors caused by bad command lines.
var errUsage = errors.New("usage")

type options struct {
	admin    string
	nodes    string
	replicas int
	timeout  time.Duration
	out      io.Writer
}

func run(ctx context.Context, opts options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	switch args[0] {
	case "owner", "local", "join", "stats":
		return runAdmin(ctx, opts, args)
	case "get", "put", "ping":
		return runRouted(ctx, opts, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func runAdmin(ctx context.Context, opts options, args []string) error {
	if opts.admin == "" {
		return fmt.Errorf("%w: --admin is required for %s", errUsage, args[0])
	}
	if err := checkArgs(args); err != nil {
		return err
	}
	c, err := admin.Dial(opts.admin)
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "owner":
		owner, err := c.Owner(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(opts.out, owner)
	case "local":
		value, err := c.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(opts.out, value)
	case "join":
		return c.Join(ctx, args[1])
	case "stats":
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(opts.out, "id:      %s\naddr:    %s\nkeys:    %d\nstate:   %s\nmembers: %s\n",
			st.ID, st.Addr, st.Keys, st.State, strings.Join(st.Members, ","))
	}
	return nil
}

func runRouted(ctx context.Context, opts options, args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}
	members, err := config.ParseSeeds(opts.nodes)
	if err != nil {
		return err
	}
	if len(members) == 0 && args[0] != "ping" {
		return fmt.Errorf("%w: --nodes is required for %s", errUsage, args[0])
	}
	c := client.New(ring.New(opts.replicas, members...), client.WithTimeout(opts.timeout))

	switch args[0] {
	case "get":
		value, err := c.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(opts.out, value)
	case "put":
		return c.Put(ctx, args[1], args[2])
	case "ping":
		if err := c.Ping(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(opts.out, "pong")
	}
	return nil
}

// arity is the number of arguments each command takes.
var arity = map[string]int{
	"owner": 1,
	"local": 1,
	"join":  1,
	"stats": 0,
	"get":   1,
	"put":   2,
	"ping":  1,
}

func checkArgs(args []string) error {
	want, ok := arity[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	if got := len(args) - 1; got != want {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, args[0], want, got)
	}
	return nil
}

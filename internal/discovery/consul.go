package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"
)

// Consul resolves peers from the passing instances of a service in the
// Consul catalog, and registers the local node under that service.
type Consul struct {
	client  *consulapi.Client
	service string
	tag     string
	log     *logrus.Entry
}

// NewConsul creates a resolver against the Consul agent at addr. An empty
// tag matches every instance of the service.
func NewConsul(addr, service, tag string) (*Consul, error) {
	if service == "" {
		return nil, fmt.Errorf("consul service name cannot be empty")
	}
	conf := consulapi.DefaultConfig()
	if addr != "" {
		conf.Address = addr
	}
	c, err := consulapi.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return &Consul{
		client:  c,
		service: service,
		tag:     tag,
		log: logrus.WithFields(logrus.Fields{
			"component": "discovery",
			"service":   service,
		}),
	}, nil
}

// Resolve returns host:port for each passing instance of the service.
func (d *Consul) Resolve(ctx context.Context) ([]string, error) {
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := d.client.Health().Service(d.service, d.tag, true, opts)
	if err != nil {
		return nil, fmt.Errorf("consul lookup of %s: %w", d.service, err)
	}

	addrs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Service == nil {
			continue
		}
		host := entry.Service.Address
		if host == "" && entry.Node != nil {
			host = entry.Node.Address
		}
		if host == "" || entry.Service.Port == 0 {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(entry.Service.Port)))
	}
	d.log.WithField("instances", len(addrs)).Debug("Resolved peers")
	return addrs, nil
}

// Register adds the node at host:port to the service catalog. The service ID
// is the node's address, so registering twice replaces the entry.
func (d *Consul) Register(ctx context.Context, host string, port int) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      serviceID(d.service, host, port),
		Name:    d.service,
		Address: host,
		Port:    port,
	}
	if d.tag != "" {
		reg.Tags = []string{d.tag}
	}
	opts := consulapi.ServiceRegisterOpts{}.WithContext(ctx)
	if err := d.client.Agent().ServiceRegisterOpts(reg, opts); err != nil {
		return fmt.Errorf("consul register %s: %w", reg.ID, err)
	}
	d.log.WithField("id", reg.ID).Info("Registered with consul")
	return nil
}

// Deregister removes the node at host:port from the catalog.
func (d *Consul) Deregister(ctx context.Context, host string, port int) error {
	id := serviceID(d.service, host, port)
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	if err := d.client.Agent().ServiceDeregisterOpts(id, opts); err != nil {
		return fmt.Errorf("consul deregister %s: %w", id, err)
	}
	d.log.WithField("id", id).Info("Deregistered from consul")
	return nil
}

func serviceID(service, host string, port int) string {
	return strings.Join([]string{service, host, strconv.Itoa(port)}, "-")
}

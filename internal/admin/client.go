package admin

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Stats is the decoded form of the Stats reply.
type Stats struct {
	ID      string
	Addr    string
	Keys    int
	Members []string
	State   string
}

// Client is a typed client for the Admin service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the admin endpoint at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Conn returns the underlying connection.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Owner returns the node owning key.
func (c *Client) Owner(ctx context.Context, key string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, ownerMethod, wrapperspb.String(key), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Get reads key from the node's local store.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, getMethod, wrapperspb.String(key), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Join asks the node to join the peer at addr ("host:port").
func (c *Client) Join(ctx context.Context, addr string) error {
	return c.conn.Invoke(ctx, joinMethod, wrapperspb.String(addr), new(emptypb.Empty))
}

// Stats fetches the node summary.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsMethod, &emptypb.Empty{}, out); err != nil {
		return Stats{}, err
	}

	fields := out.GetFields()
	st := Stats{
		ID:    fields["id"].GetStringValue(),
		Addr:  fields["addr"].GetStringValue(),
		Keys:  int(fields["keys"].GetNumberValue()),
		State: fields["state"].GetStringValue(),
	}
	for _, v := range fields["members"].GetListValue().GetValues() {
		st.Members = append(st.Members, v.GetStringValue())
	}
	return st, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

package admin

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"dht/internal/config"
	"dht/internal/node"
	"dht/internal/protocol"
	"dht/internal/ring"
)

// Backend is the node surface the admin service needs.
type Backend interface {
	Ring() *ring.Ring
	Get(key string) (string, error)
	Join(ctx context.Context, host string, port int) error
	Stats() node.Stats
}

// Server implements AdminServer on top of a node.
type Server struct {
	backend Backend
	log     *logrus.Entry
}

// NewServer creates an admin service for backend.
func NewServer(backend Backend, logger *logrus.Logger) *Server {
	return &Server{
		backend: backend,
		log:     logger.WithField("component", "admin"),
	}
}

// Owner returns the node the ring assigns to the key, or "" on an empty ring.
func (s *Server) Owner(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}
	owner, _ := s.backend.Ring().GetNode(req.GetValue())
	return wrapperspb.String(owner), nil
}

// Get reads the key from the node's local store.
func (s *Server) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}
	value, err := s.backend.Get(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(value), nil
}

// Join runs the join protocol against the peer at "host:port" and returns
// when it has finished.
func (s *Server) Join(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	host, port, err := config.ParseAddr(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.backend.Join(ctx, host, port); err != nil {
		s.log.WithField("peer", req.GetValue()).WithError(err).Warn("Join failed")
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Stats reports the node's identity, key count, ring members and join state.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.backend.Stats()
	members := make([]any, len(st.Members))
	for i, m := range st.Members {
		members[i] = m
	}
	out, err := structpb.NewStruct(map[string]any{
		"id":      st.ID,
		"addr":    st.Addr,
		"keys":    st.Keys,
		"members": members,
		"state":   st.State.String(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, node.ErrUnreachable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, node.ErrJoinInProgress), errors.Is(err, node.ErrNotOwner):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, node.ErrSelfJoin):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, protocol.ErrMalformedTransfer):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewGRPCServer builds a gRPC server carrying the admin service, the
// standard health service and server reflection. The returned health server
// reports SERVING for the admin service until Shutdown is called on it.
func NewGRPCServer(backend Backend, logger *logrus.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	s := grpc.NewServer(opts...)

	RegisterAdminServer(s, NewServer(backend, logger))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s, hs
}

func loggingInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logEntry := logger.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start),
		})
		if err != nil {
			logEntry.WithError(err).Warn("Admin call failed")
		} else {
			logEntry.Debug("Admin call")
		}
		return resp, err
	}
}

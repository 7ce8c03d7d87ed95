// Package server provides gRPC and HTTP server lifecycle management.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/healthcert/internal/core/api"
	"github.com/solatis/healthcert/internal/core/auth"
	"github.com/solatis/healthcert/internal/core/config"
)

// Verifier service identifiers. Requests and responses are
// google.protobuf.Struct values shaped like api.VerifyRequest and api.Verdict.
const (
	ServiceName  = "healthcert.v1.Verifier"
	VerifyMethod = "/" + ServiceName + "/Verify"
)

// shutdownTimeout bounds GracefulStop before the server is stopped hard.
const shutdownTimeout = 30 * time.Second

// VerifierServer is the server API for the Verifier service.
type VerifierServer interface {
	Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var verifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "healthcert/v1/verifier.proto",
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerifierServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VerifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerifierServer).Verify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterVerifierServer registers srv on s.
func RegisterVerifierServer(s grpc.ServiceRegistrar, srv VerifierServer) {
	s.RegisterService(&verifierServiceDesc, srv)
}

// VerifierClient calls the Verifier service.
type VerifierClient struct {
	cc grpc.ClientConnInterface
}

func NewVerifierClient(cc grpc.ClientConnInterface) *VerifierClient {
	return &VerifierClient{cc: cc}
}

// Verify sends req and decodes the verdict.
func (c *VerifierClient) Verify(ctx context.Context, req api.VerifyRequest, opts ...grpc.CallOption) (*api.Verdict, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VerifyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	var verdict api.Verdict
	if err := fromStruct(out, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// verifierService adapts the verification service to the Struct wire shape.
type verifierService struct {
	service *api.VerificationService
}

func (v *verifierService) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.VerifyRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	verdict, err := v.service.Verify(ctx, req)
	if err != nil {
		return nil, status.Error(api.Code(err), err.Error())
	}

	out, err := toStruct(verdict)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode verdict: %v", err)
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert from struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config *config.ServerConfig
}

// NewGRPCServer creates gRPC server with auth interceptor and service registration.
func NewGRPCServer(cfg *config.ServerConfig, service *api.VerificationService, authenticator *auth.Authenticator) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			authenticator.UnaryInterceptor(grpc_health_v1.Health_Check_FullMethodName),
		),
	}

	server := grpc.NewServer(opts...)
	RegisterVerifierServer(server, &verifierService{service: service})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Addr is the configured listen address.
func (s *GRPCServer) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.GRPCPort))
}

// Start binds listener and serves gRPC requests.
// Context is provided for API consistency but Serve blocks until Shutdown is called.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	return s.server.Serve(listener)
}

// Shutdown marks the server as not serving, then stops it gracefully within
// shutdownTimeout.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

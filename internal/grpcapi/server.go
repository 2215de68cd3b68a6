package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/service"
)

type Dependencies struct {
	Logger           *slog.Logger
	Addr             string
	Scans            *service.ScanService
	Tokens           *auth.Issuer
	OperationTimeout time.Duration
}

type Server struct {
	addr    string
	logger  *slog.Logger
	scans   *service.ScanService
	tokens  *auth.Issuer
	timeout time.Duration

	grpc   *grpc.Server
	health *health.Server
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		addr:    d.Addr,
		logger:  d.Logger.With(slog.String("component", "grpc")),
		scans:   d.Scans,
		tokens:  d.Tokens,
		timeout: d.OperationTimeout,
		health:  health.NewServer(),
	}

	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.authInterceptor))
	RegisterGateScanServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info("stopping grpc server")
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	s.logger.Info("grpc listening", slog.String("address", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Scan implements GateScanServer. The gate identity comes from the token
// checked by authInterceptor.
func (s *Server) Scan(ctx context.Context, payload *wrapperspb.StringValue) (*structpb.Struct, error) {
	gate, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Invalid or expired token")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.scans.Scan(ctx, gate.Subject, payload.GetValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	out, err := scanResponseToStruct(resp)
	if err != nil {
		return nil, s.toStatus(service.WrapInternalError(err, "encoding scan response"))
	}
	return out, nil
}

// toStatus maps a service error onto a gRPC status. Internal errors are
// logged and reported without detail.
func (s *Server) toStatus(err error) error {
	var se *service.Error
	if !errors.As(err, &se) || se.Kind() == service.KindInternal {
		s.logger.Error("scan failed", slog.String("error", err.Error()))
		return status.Error(codes.Internal, "unexpected server error")
	}

	code := codes.Internal
	switch se.Kind() {
	case service.KindValidation:
		code = codes.InvalidArgument
	case service.KindNotFound:
		code = codes.NotFound
	case service.KindInvalidTransition:
		code = codes.FailedPrecondition
	case service.KindAuthentication, service.KindSignature:
		code = codes.Unauthenticated
	case service.KindForbidden:
		code = codes.PermissionDenied
	case service.KindConflict:
		code = codes.AlreadyExists
	}
	return status.Error(code, se.Message())
}

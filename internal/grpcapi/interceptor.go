package grpcapi

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
)

// authInterceptor requires a gate bearer token in the "authorization"
// metadata for every GateScan method. Other services (health) are open.
func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
	}
	raw, ok := auth.BearerToken(header)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "Invalid or expired token")
	}
	if err := id.Require(auth.RoleGate); err != nil {
		return nil, status.Error(codes.PermissionDenied, "Insufficient permissions")
	}

	return handler(auth.ContextWithIdentity(ctx, id), req)
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	level := slog.LevelInfo
	if code == codes.Internal || code == codes.Unknown {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "rpc",
		slog.String("method", info.FullMethod),
		slog.String("code", code.String()),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, err
}

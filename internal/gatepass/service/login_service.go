package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// LoginService exchanges the shared login secret for bearer tokens. Users
// are registered on first login; gates must be registered by an admin.
type LoginService struct {
	principals *PrincipalRegistry
	tokens     *auth.Issuer
	secret     string
	audit      *AuditLog
	logger     *slog.Logger
}

func NewLoginService(principals *PrincipalRegistry, tokens *auth.Issuer, loginSecret string, audit *AuditLog, logger *slog.Logger) *LoginService {
	return &LoginService{principals: principals, tokens: tokens, secret: loginSecret, audit: audit, logger: logger}
}

func (s *LoginService) UserLogin(ctx context.Context, req types.LoginRequest) (types.LoginResponse, error) {
	id := strings.TrimSpace(req.UserID)
	if id == "" || req.Password == "" {
		return types.LoginResponse{}, NewValidationError("Missing credentials")
	}
	if !auth.SecretMatches(s.secret, req.Password) {
		s.audit.Record(ctx, userLoginEvent(id, false, "Invalid credentials"))
		return types.LoginResponse{}, NewAuthenticationError("Invalid credentials")
	}

	user, err := s.principals.EnsureUser(ctx, id, req.DeviceID)
	if err != nil {
		return types.LoginResponse{}, err
	}

	token, err := s.tokens.Issue(user.ID, auth.RoleUser)
	if err != nil {
		return types.LoginResponse{}, WrapInternalError(err, "issuing token")
	}

	s.audit.Record(ctx, userLoginEvent(id, true, "Device: "+strings.TrimSpace(req.DeviceID)))
	s.logger.Info("user login", slog.String("user_id", id))

	p := principalToType(user)
	return types.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL() / time.Second),
		User:      &p,
		Message:   "Login successful",
	}, nil
}

// GateLogin authenticates a registered gate. A reported location more than
// 0.01 degrees from the registered one on either axis is refused.
func (s *LoginService) GateLogin(ctx context.Context, req types.GateLoginRequest) (types.LoginResponse, error) {
	id := strings.TrimSpace(req.TabletID)
	if id == "" || req.Password == "" {
		return types.LoginResponse{}, NewValidationError("Missing credentials")
	}
	if !auth.SecretMatches(s.secret, req.Password) {
		s.audit.Record(ctx, gateLoginEvent(id, false, "Invalid credentials"))
		return types.LoginResponse{}, NewAuthenticationError("Invalid credentials")
	}

	gate, err := s.principals.Get(ctx, store.KindGate, id)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return types.LoginResponse{}, NewNotFoundError("Gate not registered")
		}
		return types.LoginResponse{}, err
	}

	gps := strings.TrimSpace(req.GPSLocation)
	if gps != "" && !gpsMatches(gps, gate.GPSLocation) {
		s.audit.Record(ctx, gateLoginEvent(id, false, "GPS validation failed"))
		return types.LoginResponse{}, NewForbiddenError("GPS validation failed")
	}

	token, err := s.tokens.Issue(gate.ID, auth.RoleGate)
	if err != nil {
		return types.LoginResponse{}, WrapInternalError(err, "issuing token")
	}

	s.audit.Record(ctx, gateLoginEvent(id, true, "GPS: "+gps))
	s.logger.Info("gate login", slog.String("gate_id", id))

	p := principalToType(gate)
	return types.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL() / time.Second),
		Gate:      &p,
		Message:   "Gate login successful",
	}, nil
}

// Me describes the caller behind a token.
func (s *LoginService) Me(ctx context.Context, id auth.Identity) (types.MeResponse, error) {
	switch id.Role {
	case auth.RoleUser:
		p, err := s.principals.Describe(ctx, store.KindUser, id.Subject)
		if err != nil {
			return types.MeResponse{}, err
		}
		return types.MeResponse{Role: string(id.Role), Principal: p}, nil
	case auth.RoleGate:
		p, err := s.principals.Describe(ctx, store.KindGate, id.Subject)
		if err != nil {
			return types.MeResponse{}, err
		}
		return types.MeResponse{Role: string(id.Role), Principal: p}, nil
	default:
		return types.MeResponse{
			Role:      string(id.Role),
			Principal: types.Principal{ID: id.Subject, Kind: string(id.Role)},
		}, nil
	}
}

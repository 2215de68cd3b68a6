package service

import (
	"log/slog"

	"github.com/BrandonDHaskell/gatepass/server/internal/auth"
	"github.com/BrandonDHaskell/gatepass/server/internal/catalog"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/signing"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
)

type Options struct {
	Pass        PassConfig
	Scan        ScanConfig
	LoginSecret string
}

// Services is the wired service layer shared by the transports.
type Services struct {
	Audit      *AuditLog
	Pauses     *PauseRegistry
	Principals *PrincipalRegistry
	Passes     *PassService
	Scans      *ScanService
	Logins     *LoginService
	Catalog    *catalog.Catalog
}

func New(stores store.Stores, signer signing.Service, cat *catalog.Catalog, tokens *auth.Issuer, opt Options, logger *slog.Logger) *Services {
	audit := NewAuditLog(stores.Audit, logger)
	pauses := NewPauseRegistry(stores.State, cat, audit)
	principals := NewPrincipalRegistry(stores.Principals, signer, cat, audit)

	return &Services{
		Audit:      audit,
		Pauses:     pauses,
		Principals: principals,
		Passes:     NewPassService(stores.Passes, principals, signer, cat, audit, opt.Pass, logger),
		Scans:      NewScanService(stores.Passes, principals, signer, pauses, audit, opt.Scan, logger),
		Logins:     NewLoginService(principals, tokens, opt.LoginSecret, audit, logger),
		Catalog:    cat,
	}
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/store"
	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

// devGates are the demo gates created by SeedDev.
var devGates = []types.RegisterGateRequest{
	{TabletID: "GATE001", SiteID: "SITE001", GPSLocation: "22.3193,114.1694"},
	{TabletID: "GATE002", SiteID: "SITE002", GPSLocation: "22.3200,114.1700"},
	{TabletID: "GATE003", SiteID: "SITE003", GPSLocation: "22.3210,114.1710"},
	{TabletID: "GATE004", SiteID: "SITE004", GPSLocation: "22.3220,114.1720"},
}

// SeedDev registers the demo gates. Gates that already exist, or whose site
// is missing from the catalog, are skipped; running it twice is harmless.
func SeedDev(ctx context.Context, principals *PrincipalRegistry, logger *slog.Logger) error {
	created := 0
	for _, g := range devGates {
		if !principals.catalog.HasSite(g.SiteID) {
			continue
		}
		_, _, err := principals.register(ctx, store.PrincipalRecord{
			ID:          g.TabletID,
			Kind:        store.KindGate,
			GPSLocation: g.GPSLocation,
			SiteID:      g.SiteID,
		})
		if err != nil {
			return fmt.Errorf("seed gate %s: %w", g.TabletID, err)
		}
		created++
	}
	logger.Info("dev seed complete", slog.Int("gates", created))
	return nil
}

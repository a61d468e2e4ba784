// Package bootstrap assembles the commission ledger for the service binaries.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/internal/ledger"
	"github.com/angelmondragon/storefront-affiliates/internal/orders"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/db"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/metrics"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
)

// Ledger builds the commission service on top of the shared database client.
// A nil registerer disables metrics.
func Ledger(client *db.Client, cfg config.CommissionsConfig, logg *logger.Logger, reg prometheus.Registerer) (*commissions.Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	auditSvc, err := ledger.NewService(ledger.NewRepository(client.DB()))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	return commissions.NewService(commissions.ServiceParams{
		Repo:    commissions.NewRepository(client.DB()),
		Tx:      client,
		Ledger:  auditSvc,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:  logg,
		Metrics: metrics.NewCommissionMetrics(reg),
		Config:  cfg,
	})
}

// Bridge links the order mirror to svc.
func Bridge(client *db.Client, svc *commissions.Service, logg *logger.Logger) (*orders.Bridge, error) {
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	return orders.NewBridge(orders.NewRepository(client.DB()), svc, logg)
}

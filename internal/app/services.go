package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/httpapi"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
)

// buildServices собирает прикладные сервисы поверх выбранного хранилища.
func buildServices(cfg Config, deps *runtimeDependencies, m *metrics.CheckoutMetrics, logger *log.Entry) httpapi.Services {
	checkoutOpts := []checkout.Option{
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(m),
		checkout.WithMaxAttempts(cfg.CheckoutMaxAttempts),
	}
	if deps.sequence != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithSequence(deps.sequence))
	}

	return httpapi.Services{
		Catalog:  catalog.NewService(deps.store, logger.WithField("component", "catalog")),
		Cart:     cart.NewService(deps.store, logger.WithField("component", "cart")),
		Checkout: checkout.NewService(deps.store, checkoutOpts...),
		Orders: orders.NewService(deps.store,
			orders.WithLogger(logger.WithField("component", "orders")),
			orders.WithMetrics(m),
		),
		Users: users.NewService(deps.store.Users(), cfg.BcryptCost, logger.WithField("component", "users")),
		Idempotency: idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL,
			logger.WithField("component", "idempotency")),
	}
}

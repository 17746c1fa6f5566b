package catalog

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Service управляет каталогом товаров.
type Service struct {
	store  domain.Store
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{store: store, logger: logger}
}

// Create добавляет товар в каталог.
func (s *Service) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Normalize()
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	created, err := s.store.Products().Create(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"name":       created.Name,
	}).Info("product created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	return s.store.Products().Get(ctx, id)
}

// List возвращает товары по возрастанию ID.
func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.store.Products().List(ctx)
}

// Update заменяет изменяемые поля товара.
func (s *Service) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Normalize()
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.store.Products().Update(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithField("product_id", updated.ID).Info("product updated")
	return updated, nil
}

// Delete удаляет товар. Товар, попавший в заказы, удалить нельзя: ErrProductInUse.
// Строки корзин с этим товаром удаляются вместе с ним.
// Блокировки берутся как при оформлении: сначала корзины, потом товар.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Carts().LockProductLines(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Products().GetForUpdate(ctx, id); err != nil {
			return err
		}
		referenced, err := tx.Products().IsReferenced(ctx, id)
		if err != nil {
			return fmt.Errorf("check product references: %w", err)
		}
		if referenced {
			return domain.ErrProductInUse
		}
		return tx.Products().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// Stats возвращает сводку по каталогу; порог малого остатка — domain.LowStockThreshold.
func (s *Service) Stats(ctx context.Context) (domain.CatalogStats, error) {
	return s.store.Products().Stats(ctx, domain.LowStockThreshold)
}

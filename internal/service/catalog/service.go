package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CreateProductInput: данные нового товара поставщика.
type CreateProductInput struct {
	SupplierID  string
	Name        string
	Description string
	ImageRef    string
	PriceMinor  int64
	Stock       int
}

// Service управляет каталогом: поставщик меняет только свои товары.
type Service struct {
	repo   domain.CatalogRepository
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(repo domain.CatalogRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает товар по ID.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает витрину или товары одного поставщика.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	products, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// CreateProduct добавляет товар поставщика.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		SupplierID:  strings.TrimSpace(in.SupplierID),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		ImageRef:    strings.TrimSpace(in.ImageRef),
		PriceMinor:  in.PriceMinor,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"product_id":  product.ID,
		"supplier_id": product.SupplierID,
		"stock":       product.Stock,
	}).Info("product created")
	return product, nil
}

// UpdatePriceStock меняет цену и остаток. Чужой товар даёт ErrForbidden.
func (s *Service) UpdatePriceStock(ctx context.Context, supplierID, productID string, priceMinor int64, stock int) (domain.Product, error) {
	if priceMinor < 0 {
		return domain.Product{}, domain.NewValidationError("price", "must be non-negative")
	}
	if stock < 0 {
		return domain.Product{}, domain.NewValidationError("stock", "must be non-negative")
	}
	if err := s.checkOwner(ctx, supplierID, productID); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.UpdatePriceStock(ctx, productID, supplierID, priceMinor, stock)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id":  productID,
		"supplier_id": supplierID,
		"price_minor": priceMinor,
		"stock":       stock,
	}).Info("product updated")
	return product, nil
}

// DeleteProduct удаляет товар поставщика. Снимки в уже оформленных заказах сохраняются.
func (s *Service) DeleteProduct(ctx context.Context, supplierID, productID string) error {
	if err := s.checkOwner(ctx, supplierID, productID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, productID, supplierID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.logger.WithFields(log.Fields{"product_id": productID, "supplier_id": supplierID}).Info("product deleted")
	return nil
}

// checkOwner различает «нет товара» и «товар чужой», чего не делает репозиторий.
func (s *Service) checkOwner(ctx context.Context, supplierID, productID string) error {
	product, err := s.repo.Get(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if !product.OwnedBy(supplierID) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrForbidden)
	}
	return nil
}

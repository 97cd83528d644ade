package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/saukimart/internal/models"
)

// PlanLookup resolves data plans for the payment and delivery flows.
type PlanLookup interface {
	FindDataPlan(ctx context.Context, id uuid.UUID) (*models.DataPlan, error)
}

// ProductLookup resolves physical products for e-commerce orders.
type ProductLookup interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// DataPlanInput is the editable part of a data plan.
type DataPlanInput struct {
	Network  string `json:"network" validate:"required"`
	Data     string `json:"data" validate:"required"`
	Validity string `json:"validity"`
	Price    int64  `json:"price" validate:"gt=0"`
	PlanCode int    `json:"plan_code" validate:"gt=0"`
}

// ProductInput is the editable part of a product.
type ProductInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"gt=0"`
	Image       string `json:"image"`
	InStock     *bool  `json:"in_stock"`
	Category    string `json:"category"`
}

// CatalogStore manages data plans, products and the storefront banner message.
type CatalogStore struct {
	db    *gorm.DB
	cache CatalogCache
	log   *slog.Logger
}

// NewCatalogStore creates a new CatalogStore. cache may be nil.
func NewCatalogStore(db *gorm.DB, cache CatalogCache, log *slog.Logger) *CatalogStore {
	if cache == nil {
		cache = NoopCatalogCache()
	}
	if log == nil {
		log = slog.Default()
	}
	return &CatalogStore{db: db, cache: cache, log: log}
}

// ListDataPlans returns every plan, cheapest first.
func (s *CatalogStore) ListDataPlans(ctx context.Context) ([]models.DataPlan, error) {
	var plans []models.DataPlan
	if hit, err := s.cache.Get(ctx, cacheKeyDataPlans, &plans); err != nil {
		s.log.Warn("catalog cache read failed", "key", cacheKeyDataPlans, "error", err)
	} else if hit {
		return plans, nil
	}

	plans = nil
	if err := s.db.WithContext(ctx).Order("network ASC, price ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cacheKeyDataPlans, plans); err != nil {
		s.log.Warn("catalog cache write failed", "key", cacheKeyDataPlans, "error", err)
	}
	return plans, nil
}

func (s *CatalogStore) FindDataPlan(ctx context.Context, id uuid.UUID) (*models.DataPlan, error) {
	var plan models.DataPlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// CreateDataPlan rejects networks the delivery gateway cannot serve.
func (s *CatalogStore) CreateDataPlan(ctx context.Context, input DataPlanInput) (*models.DataPlan, error) {
	if _, err := NetworkCode(input.Network); err != nil {
		return nil, newServiceError(ErrorMapping, err)
	}

	plan := models.DataPlan{
		Network:  strings.ToUpper(strings.TrimSpace(input.Network)),
		Data:     input.Data,
		Validity: input.Validity,
		Price:    input.Price,
		PlanCode: input.PlanCode,
	}
	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cacheKeyDataPlans)
	return &plan, nil
}

func (s *CatalogStore) UpdateDataPlan(ctx context.Context, id uuid.UUID, input DataPlanInput) (*models.DataPlan, error) {
	if _, err := NetworkCode(input.Network); err != nil {
		return nil, newServiceError(ErrorMapping, err)
	}

	plan, err := s.FindDataPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Network = strings.ToUpper(strings.TrimSpace(input.Network))
	plan.Data = input.Data
	plan.Validity = input.Validity
	plan.Price = input.Price
	plan.PlanCode = input.PlanCode

	if err := s.db.WithContext(ctx).Save(plan).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cacheKeyDataPlans)
	return plan, nil
}

func (s *CatalogStore) DeleteDataPlan(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DataPlan{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	s.invalidate(ctx, cacheKeyDataPlans)
	return nil
}

// ListProducts returns in-stock products only unless includeOutOfStock is set.
func (s *CatalogStore) ListProducts(ctx context.Context, includeOutOfStock bool) ([]models.Product, error) {
	var products []models.Product
	if !includeOutOfStock {
		if hit, err := s.cache.Get(ctx, cacheKeyProducts, &products); err != nil {
			s.log.Warn("catalog cache read failed", "key", cacheKeyProducts, "error", err)
		} else if hit {
			return products, nil
		}
	}

	products = nil
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if !includeOutOfStock {
		query = query.Where("in_stock = ?", true)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}

	if !includeOutOfStock {
		if err := s.cache.Set(ctx, cacheKeyProducts, products); err != nil {
			s.log.Warn("catalog cache write failed", "key", cacheKeyProducts, "error", err)
		}
	}
	return products, nil
}

func (s *CatalogStore) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *CatalogStore) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	product := models.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Image:       input.Image,
		InStock:     true,
		Category:    input.Category,
	}
	if input.InStock != nil {
		product.InStock = *input.InStock
	}
	if product.Category == "" {
		product.Category = "device"
	}

	// Select every column so an explicit in_stock=false is not replaced by the default.
	if err := s.db.WithContext(ctx).Select("*").Create(&product).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cacheKeyProducts)
	return &product, nil
}

func (s *CatalogStore) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*models.Product, error) {
	product, err := s.FindProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.Image = input.Image
	if input.InStock != nil {
		product.InStock = *input.InStock
	}
	if input.Category != "" {
		product.Category = input.Category
	}

	if err := s.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cacheKeyProducts)
	return product, nil
}

func (s *CatalogStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	s.invalidate(ctx, cacheKeyProducts)
	return nil
}

// ActiveSystemMessage returns the banner currently shown on the storefront.
func (s *CatalogStore) ActiveSystemMessage(ctx context.Context) (*models.SystemMessage, error) {
	var msg models.SystemMessage
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// PublishSystemMessage stores a new banner. An active message replaces the
// previous one.
func (s *CatalogStore) PublishSystemMessage(ctx context.Context, content, kind string, active bool) (*models.SystemMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, newServiceError(ErrorValidation, errors.New("content is required"))
	}
	if kind == "" {
		kind = "info"
	}

	msg := models.SystemMessage{Content: content, Type: kind, IsActive: active}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			if err := tx.Model(&models.SystemMessage{}).
				Where("is_active = ?", true).
				Update("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate messages: %w", err)
			}
		}
		return tx.Select("*").Create(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *CatalogStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("catalog cache invalidation failed", "keys", keys, "error", err)
	}
}

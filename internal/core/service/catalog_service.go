package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

const minDescriptionLength = 10

type CatalogService struct {
	products port.ProductRepository
	images   port.ImageStore
}

// NewCatalogService accepts a nil image store; uploads then fail with
// domain.ErrImageStoreUnavailable.
func NewCatalogService(products port.ProductRepository, images port.ImageStore) *CatalogService {
	return &CatalogService{products: products, images: images}
}

func (s *CatalogService) ListProducts(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.products.ListProducts(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, id domain.Identity, in domain.ProductInput) (domain.Product, error) {
	if !id.IsAdmin() {
		return domain.Product{}, domain.ErrUnauthorized
	}
	if err := validateProduct(in); err != nil {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProductInput(&product, in)

	if err := s.products.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id domain.Identity, productID string, in domain.ProductInput) (domain.Product, error) {
	if !id.IsAdmin() {
		return domain.Product{}, domain.ErrUnauthorized
	}
	if err := validateProduct(in); err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	applyProductInput(&product, in)
	product.UpdatedAt = time.Now().UTC()

	if err := s.products.UpdateProduct(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id domain.Identity, productID string) error {
	if !id.IsAdmin() {
		return domain.ErrUnauthorized
	}

	if err := s.products.DeleteProduct(ctx, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// UploadProductImage stores the image and points the product at it.
func (s *CatalogService) UploadProductImage(ctx context.Context, id domain.Identity, productID, filename, contentType string, body io.Reader) (domain.Product, error) {
	if !id.IsAdmin() {
		return domain.Product{}, domain.ErrUnauthorized
	}
	if s.images == nil {
		return domain.Product{}, domain.ErrImageStoreUnavailable
	}
	if !strings.HasPrefix(contentType, "image/") {
		return domain.Product{}, domain.InvalidInput("content type %q is not an image", contentType)
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}

	key := fmt.Sprintf("products/%s/%s%s", product.ID, time.Now().UTC().Format("20060102150405"), path.Ext(filename))
	location, err := s.images.PutImage(ctx, key, contentType, body)
	if err != nil {
		return domain.Product{}, fmt.Errorf("upload image: %w", err)
	}

	// Only the image column is written; stock may have moved during the upload.
	if err := s.products.SetProductImage(ctx, product.ID, location, time.Now().UTC()); err != nil {
		return domain.Product{}, fmt.Errorf("set product image: %w", err)
	}

	product, err = s.products.GetProduct(ctx, product.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func validateProduct(in domain.ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.InvalidInput("name is required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) < minDescriptionLength {
		return domain.InvalidInput("description must be at least %d characters", minDescriptionLength)
	}
	if !in.Price.IsPositive() {
		return domain.InvalidInput("price must be positive")
	}
	if in.Stock < 0 {
		return domain.InvalidInput("stock cannot be negative")
	}
	if in.ImageURL != "" {
		u, err := url.Parse(in.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.InvalidInput("image must be an http(s) URL")
		}
	}
	return nil
}

func applyProductInput(p *domain.Product, in domain.ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price.Round(2)
	p.Stock = in.Stock
	p.ImageURL = in.ImageURL
}

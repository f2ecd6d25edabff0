package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

type CartService struct {
	carts    port.CartRepository
	products port.ProductRepository
}

func NewCartService(carts port.CartRepository, products port.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

func (s *CartService) GetCart(ctx context.Context, id domain.Identity) (domain.Cart, error) {
	if !id.Authenticated() {
		return domain.Cart{}, domain.ErrUnauthorized
	}

	cart, err := s.carts.GetOrCreateCart(ctx, id.UserID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddToCart merges the quantity into an existing line for the product.
func (s *CartService) AddToCart(ctx context.Context, id domain.Identity, productID string, quantity int) (domain.Cart, error) {
	if !id.Authenticated() {
		return domain.Cart{}, domain.ErrUnauthorized
	}
	if quantity <= 0 {
		return domain.Cart{}, domain.InvalidInput("quantity must be positive")
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get product: %w", err)
	}

	cart, err := s.carts.GetOrCreateCart(ctx, id.UserID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	item := domain.CartItem{
		ID:        uuid.NewString(),
		CartID:    cart.ID,
		ProductID: product.ID,
		Quantity:  quantity,
	}
	for _, existing := range cart.Items {
		if existing.ProductID == product.ID {
			item.ID = existing.ID
			item.Quantity += existing.Quantity
			break
		}
	}

	if item.Quantity > product.Stock {
		return domain.Cart{}, &domain.InsufficientStockError{ProductName: product.Name}
	}

	if err := s.carts.SaveCartItem(ctx, item); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart item: %w", err)
	}

	return s.GetCart(ctx, id)
}

func (s *CartService) UpdateCartItem(ctx context.Context, id domain.Identity, itemID string, quantity int) (domain.Cart, error) {
	if !id.Authenticated() {
		return domain.Cart{}, domain.ErrUnauthorized
	}
	if quantity <= 0 {
		return domain.Cart{}, domain.InvalidInput("quantity must be positive")
	}

	item, err := s.ownedItem(ctx, id, itemID)
	if err != nil {
		return domain.Cart{}, err
	}
	if quantity > item.ProductStock {
		return domain.Cart{}, &domain.InsufficientStockError{ProductName: item.ProductName}
	}

	if err := s.carts.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return domain.Cart{}, fmt.Errorf("update cart item: %w", err)
	}

	return s.GetCart(ctx, id)
}

func (s *CartService) RemoveFromCart(ctx context.Context, id domain.Identity, itemID string) (domain.Cart, error) {
	if !id.Authenticated() {
		return domain.Cart{}, domain.ErrUnauthorized
	}

	if _, err := s.ownedItem(ctx, id, itemID); err != nil {
		return domain.Cart{}, err
	}

	if err := s.carts.DeleteCartItem(ctx, itemID); err != nil {
		return domain.Cart{}, fmt.Errorf("delete cart item: %w", err)
	}

	return s.GetCart(ctx, id)
}

func (s *CartService) ClearCart(ctx context.Context, id domain.Identity) error {
	if !id.Authenticated() {
		return domain.ErrUnauthorized
	}

	cart, err := s.carts.FindCart(ctx, id.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find cart: %w", err)
	}

	if err := s.carts.ClearCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) ownedItem(ctx context.Context, id domain.Identity, itemID string) (domain.CartItem, error) {
	item, owner, err := s.carts.GetCartItem(ctx, itemID)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("get cart item: %w", err)
	}
	if owner != id.UserID {
		return domain.CartItem{}, domain.ErrUnauthorized
	}
	return item, nil
}

package port

import (
	"context"
	"time"

	"github.com/rl1809/shophub/internal/core/domain"
)

type ProductRepository interface {
	// ListProducts returns products whose name or description contains query, newest first
	ListProducts(ctx context.Context, query string) ([]domain.Product, error)

	// GetProduct returns domain.ErrNotFound for an unknown id
	GetProduct(ctx context.Context, id string) (domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) error

	// UpdateProduct overwrites every editable field, returns domain.ErrNotFound for an unknown id
	UpdateProduct(ctx context.Context, product domain.Product) error

	// SetProductImage changes only the image url, leaving stock to concurrent checkouts
	SetProductImage(ctx context.Context, id, imageURL string, updatedAt time.Time) error

	// DeleteProduct returns domain.ErrProductInUse when order items still reference it
	DeleteProduct(ctx context.Context, id string) error
}

type CartRepository interface {
	// GetOrCreateCart returns the user's cart, creating an empty one on first access
	GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error)

	// FindCart loads the cart with product details, domain.ErrNotFound if the user has none
	FindCart(ctx context.Context, userID string) (domain.Cart, error)

	// GetCartItem returns a single line joined with its product, plus the id of the user owning the cart
	GetCartItem(ctx context.Context, itemID string) (domain.CartItem, string, error)

	// SaveCartItem inserts the line or replaces the quantity of the existing (cart, product) line
	SaveCartItem(ctx context.Context, item domain.CartItem) error

	UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error

	DeleteCartItem(ctx context.Context, itemID string) error

	ClearCart(ctx context.Context, cartID string) error
}

type OrderRepository interface {
	// CreateOrder persists the order and its items, decrements stock and removes exactly the
	// priced cart lines in one transaction. It fails when any priced line is gone or was edited.
	CreateOrder(ctx context.Context, order domain.Order, cart domain.Cart) error

	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// ListOrdersByUser returns the user's orders with items, newest first
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// ListOrders returns every order with items, newest first
	ListOrders(ctx context.Context) ([]domain.Order, error)

	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

type UserRepository interface {
	// CreateUser returns domain.ErrEmailTaken when the email is already registered
	CreateUser(ctx context.Context, user domain.User) error

	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	MarkEmailVerified(ctx context.Context, userID string) error

	DeleteUser(ctx context.Context, userID string) error
}

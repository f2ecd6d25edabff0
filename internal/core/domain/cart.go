package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a cart line joined with the product's current state.
type CartItem struct {
	ID           string
	CartID       string
	ProductID    string
	Quantity     int
	ProductName  string
	ProductPrice decimal.Decimal
	ProductStock int
	ImageURL     string
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal is the cart value at current product prices.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

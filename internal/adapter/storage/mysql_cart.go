package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/shophub/internal/core/domain"
)

const cartItemColumns = `ci.id, ci.cart_id, ci.product_id, ci.quantity, p.name, p.price, p.stock, p.image_url`

func scanCartItem(row rowScanner, extra ...any) (domain.CartItem, error) {
	var item domain.CartItem
	dest := append([]any{
		&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
		&item.ProductName, &item.ProductPrice, &item.ProductStock, &item.ImageURL,
	}, extra...)
	err := row.Scan(dest...)
	return item, err
}

// GetOrCreateCart tolerates a concurrent first access: a duplicate key on
// insert means another request created the cart, which is then re-read.
func (m *MySQLAdapter) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := m.FindCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, err
	}

	now := time.Now().UTC()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), userID, now, now,
	)
	if err != nil && !isDuplicateEntry(err) {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}

	return m.FindCart(ctx, userID)
}

func (m *MySQLAdapter) FindCart(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT `+cartItemColumns+`
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.created_at, ci.id`, cart.ID,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}
	return cart, nil
}

func (m *MySQLAdapter) GetCartItem(ctx context.Context, itemID string) (domain.CartItem, string, error) {
	var owner string
	item, err := scanCartItem(m.db.QueryRowContext(ctx, `
		SELECT `+cartItemColumns+`, c.user_id
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id = ?`, itemID,
	), &owner)
	if err != nil {
		return domain.CartItem{}, "", notFound(err)
	}
	return item, owner, nil
}

func (m *MySQLAdapter) SaveCartItem(ctx context.Context, item domain.CartItem) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = NOW(3)`,
		item.ID, item.CartID, item.ProductID, item.Quantity,
	)
	if mysqlErrorNumber(err) == mysqlErrNoReferencedRow {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?, updated_at = NOW(3) WHERE id = ?`, quantity, itemID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCartItem(ctx context.Context, itemID string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, cartID string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

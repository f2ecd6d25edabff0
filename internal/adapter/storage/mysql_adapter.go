package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/shophub/internal/core/domain"
)

var (
	ErrStockConflict = errors.New("stock changed during checkout")
	ErrCartChanged   = errors.New("cart changed during checkout")
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
	mysqlErrNoReferencedRow = 1452
	mysqlErrCheckViolated   = 3819
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// CreateOrder removes the priced cart lines, writes the order and its
// items and decrements stock in a single READ COMMITTED transaction.
// A priced line that is gone or was edited aborts with ErrCartChanged, a
// product whose stock dropped below the ordered quantity with
// ErrStockConflict.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order, cart domain.Cart) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Deleting the lines first serializes a double submit on their row
	// locks; the loser sees zero rows once the winner commits.
	lines := append([]domain.CartItem(nil), cart.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })

	for _, line := range lines {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE id = ? AND cart_id = ? AND product_id = ? AND quantity = ?`,
			line.ID, cart.ID, line.ProductID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("remove cart line: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove cart line: %w", err)
		}
		if rows != 1 {
			return fmt.Errorf("%w: line %s", ErrCartChanged, line.ID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Total, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, line_no, product_id, quantity, price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, order.ID, i+1, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	// Lock product rows in id order so overlapping checkouts cannot deadlock.
	items := append([]domain.OrderItem(nil), order.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - ?, updated_at = NOW(3)
			WHERE id = ? AND stock >= ?`,
			item.Quantity, item.ProductID, item.Quantity,
		)
		if mysqlErrorNumber(err) == mysqlErrCheckViolated {
			return fmt.Errorf("%w: product %s", ErrStockConflict, item.ProductID)
		}
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: product %s", ErrStockConflict, item.ProductID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

func isDuplicateEntry(err error) bool {
	return mysqlErrorNumber(err) == mysqlErrDuplicateEntry
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

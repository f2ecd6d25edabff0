package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/shophub/internal/core/domain"
)

const productColumns = `id, name, description, price, stock, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, query string) ([]domain.Product, error) {
	stmt := `SELECT ` + productColumns + ` FROM products`
	var args []any
	if query != "" {
		stmt += ` WHERE name LIKE ? OR description LIKE ?`
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern)
	}
	stmt += ` ORDER BY created_at DESC, name`

	rows, err := m.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		return domain.Product{}, notFound(err)
	}
	return p, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.ImageURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, stock = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price, p.Stock, p.ImageURL, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SetProductImage(ctx context.Context, id, imageURL string, updatedAt time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET image_url = ?, updated_at = ? WHERE id = ?`,
		imageURL, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("set product image: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set product image: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if mysqlErrorNumber(err) == mysqlErrRowIsReferenced {
		return domain.ErrProductInUse
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

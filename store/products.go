package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	Stock       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const productSelectCols = `id, name, description, price, stock, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var createdAt, updatedAt any
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]*Product, error) {
	products := []*Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (db *DB) CreateProduct(p *Product) error {
	var id int64
	err := db.QueryRow(db.Q(`INSERT INTO products (name, description, price, stock) VALUES (?, ?, ?, ?) RETURNING id`),
		p.Name, p.Description, p.Price, p.Stock).Scan(&id)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	created, err := db.GetProduct(id)
	if err != nil {
		return fmt.Errorf("create product reload: %w", err)
	}
	*p = *created
	return nil
}

func (db *DB) GetProduct(id int64) (*Product, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM products WHERE id=?`, productSelectCols)), id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound("product", id, err)
	}
	return p, nil
}

func (db *DB) ListProducts() ([]*Product, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM products ORDER BY id`, productSelectCols))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (db *DB) SaveProduct(p *Product) error {
	res, err := db.Exec(db.Q(fmt.Sprintf(`UPDATE products SET name=?, description=?, price=?, stock=?, updated_at=%s WHERE id=?`, db.dialect.Now())),
		p.Name, p.Description, p.Price, p.Stock, p.ID)
	if err != nil {
		return fmt.Errorf("save product %d: %w", p.ID, err)
	}
	return affected("product", p.ID, res)
}

// DeleteProduct reports whether a row was removed.
func (db *DB) DeleteProduct(id int64) (bool, error) {
	res, err := db.Exec(db.Q(`DELETE FROM products WHERE id=?`), id)
	if err != nil {
		return false, fmt.Errorf("delete product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete product %d rows affected: %w", id, err)
	}
	return n > 0, nil
}

package protocol

import "time"

// --- Resources (backend -> gateway) ---

// User is the user resource as produced by the users backend.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is the product resource as produced by the products backend.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int64     `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// --- Command payloads (gateway -> backend) ---

// CreateUserInput is the payload of create_user.
type CreateUserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserPatch holds the optional fields of a user update.
type UserPatch struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// UpdateUserRequest is the payload of update_user.
type UpdateUserRequest struct {
	ID    int64     `json:"id"`
	Patch UserPatch `json:"updateUserDto"`
}

// CreateProductInput is the payload of create_product.
type CreateProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
}

// ProductPatch holds the optional fields of a product update.
type ProductPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Stock       *int64   `json:"stock,omitempty"`
}

// UpdateProductRequest is the payload of update_product.
type UpdateProductRequest struct {
	ID    int64        `json:"id"`
	Patch ProductPatch `json:"updateProductDto"`
}

// StockPatch is the body of a stock update.
type StockPatch struct {
	Stock int64 `json:"stock"`
}

// UpdateStockRequest is the payload of update_product_stock.
type UpdateStockRequest struct {
	ID    int64      `json:"id"`
	Patch StockPatch `json:"updateStockDto"`
}

// find_one_*, remove_* carry the bare id as payload; find_all_* carries an
// empty object.

// Empty is the payload of commands that take no input.
type Empty struct{}

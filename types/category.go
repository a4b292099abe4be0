package types

import "time"

// DefaultCategoryColor is applied when a category is created without a color.
const DefaultCategoryColor = "#007bff"

// Category is a named, colored label owned by exactly one user.
// (Name, owner) pairs are unique.
type Category struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color" db:"color"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company - заведение, которому принадлежат товары, сотрудники и заказы.
type Company struct {
	ID        string
	Name      string
	Email     string
	Phone     *string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category группирует товары в меню.
type Category struct {
	ID        string
	CompanyID string
	Name      string
	Icon      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product - позиция меню. Price - текущая цена, заказы хранят её снимок.
type Product struct {
	ID          string
	CompanyID   string
	CategoryID  *string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    *string
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary возвращает отображаемые поля товара.
func (p Product) Summary() ProductSummary {
	return ProductSummary{Name: p.Name, Description: p.Description, ImageURL: p.ImageURL}
}

// Role - роль сотрудника.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleWaiter     Role = "WAITER"
	RoleKitchen    Role = "KITCHEN"
)

// Valid проверяет, что роль поддерживается.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleWaiter, RoleKitchen:
		return true
	default:
		return false
	}
}

// User - сотрудник. PasswordHash никогда не покидает сервис.
type User struct {
	ID           string
	CompanyID    *string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает стадию обслуживания заказа в зале/на кухне.
type OrderStatus string

const (
	// OrderStatusPending - заказ принят, но ещё не готовится.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusInProgress - заказ готовится.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	// OrderStatusDelivered - заказ выдан клиенту.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCanceled - заказ отменён.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// PaymentStatus - состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

// PaymentMethod - способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodPix  PaymentMethod = "PIX"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodPix:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	// Price - снимок цены товара на момент создания или последнего обновления позиции.
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order - заголовок заказа. TotalAmount всегда вычисляется сервером.
type Order struct {
	ID            string
	Client        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod *PaymentMethod
	Notes         *string
	TotalAmount   decimal.Decimal
	CompanyID     string
	UserID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductSummary - поля товара, нужные для отображения позиции.
type ProductSummary struct {
	Name        string
	Description string
	ImageURL    *string
}

// UserSummary - отображаемое имя сотрудника, оформившего заказ.
type UserSummary struct {
	Name string
}

// AggregateItem - позиция заказа вместе с данными товара.
type AggregateItem struct {
	OrderItem
	Product ProductSummary
}

// OrderAggregate - заказ со всеми позициями, граница консистентности.
type OrderAggregate struct {
	Order
	Items []AggregateItem
	User  UserSummary
}

// ItemRequest описывает позицию во входящем запросе.
// Пустой ID означает создание новой позиции.
type ItemRequest struct {
	ID        string
	ProductID string
	Quantity  int
}

// OrderHeader - скалярные поля для создания заказа.
type OrderHeader struct {
	Client        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod *PaymentMethod
	Notes         *string
	CompanyID     string
	UserID        string
}

// OrderPatch - частичное обновление заголовка; nil означает "не менять".
// ClearPaymentMethod и ClearNotes сбрасывают необязательные поля в NULL.
type OrderPatch struct {
	Client             *string
	Status             *OrderStatus
	PaymentStatus      *PaymentStatus
	PaymentMethod      *PaymentMethod
	ClearPaymentMethod bool
	Notes              *string
	ClearNotes         bool
	CompanyID          *string
	UserID             *string
}

// Apply применяет патч к заголовку заказа.
func (p OrderPatch) Apply(o *Order) {
	if p.Client != nil {
		o.Client = *p.Client
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	switch {
	case p.ClearPaymentMethod:
		o.PaymentMethod = nil
	case p.PaymentMethod != nil:
		method := *p.PaymentMethod
		o.PaymentMethod = &method
	}
	switch {
	case p.ClearNotes:
		o.Notes = nil
	case p.Notes != nil:
		notes := *p.Notes
		o.Notes = &notes
	}
	if p.CompanyID != nil {
		o.CompanyID = *p.CompanyID
	}
	if p.UserID != nil {
		o.UserID = *p.UserID
	}
}

// Validate проверяет значения перечислений в патче.
func (p OrderPatch) Validate() error {
	if p.Client != nil && *p.Client == "" {
		return NewValidation("client", "must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return NewValidation("status", "unsupported value")
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return NewValidation("paymentStatus", "unsupported value")
	}
	if p.PaymentMethod != nil && !p.PaymentMethod.Valid() {
		return NewValidation("paymentMethod", "unsupported value")
	}
	if p.ClearPaymentMethod && p.PaymentMethod != nil {
		return NewValidation("paymentMethod", "cannot be set and cleared at once")
	}
	if p.ClearNotes && p.Notes != nil {
		return NewValidation("notes", "cannot be set and cleared at once")
	}
	return nil
}

// Validate проверяет заголовок и подставляет значения по умолчанию.
func (h *OrderHeader) Validate() error {
	if h.Client == "" {
		return NewValidation("client", "is required")
	}
	if h.CompanyID == "" {
		return NewValidation("companyId", "is required")
	}
	if h.UserID == "" {
		return NewValidation("userId", "is required")
	}
	if h.Status == "" {
		h.Status = OrderStatusPending
	}
	if h.PaymentStatus == "" {
		h.PaymentStatus = PaymentStatusPending
	}
	if !h.Status.Valid() {
		return NewValidation("status", "unsupported value")
	}
	if !h.PaymentStatus.Valid() {
		return NewValidation("paymentStatus", "unsupported value")
	}
	if h.PaymentMethod != nil && !h.PaymentMethod.Valid() {
		return NewValidation("paymentMethod", "unsupported value")
	}
	return nil
}

// Validate проверяет позицию запроса.
func (r ItemRequest) Validate() error {
	if r.ProductID == "" {
		return NewValidation("productId", "is required")
	}
	if r.Quantity < 1 {
		return NewValidation("quantity", "must be at least 1")
	}
	return nil
}

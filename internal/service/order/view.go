package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// moneyScale - число знаков после запятой в денежных полях на проводе.
const moneyScale = 2

// View - представление агрегата для HTTP, gRPC и событий.
type View struct {
	ID            string     `json:"id"`
	Client        string     `json:"client"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"paymentStatus"`
	PaymentMethod *string    `json:"paymentMethod"`
	Notes         *string    `json:"notes"`
	TotalAmount   string     `json:"totalAmount"`
	CompanyID     string     `json:"companyId"`
	UserID        string     `json:"userId"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	OrderItems    []ItemView `json:"orderItems"`
	User          UserView   `json:"user"`
}

// ItemView - позиция заказа с отображаемыми полями товара.
type ItemView struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     string      `json:"price"`
	Product   ProductView `json:"product"`
}

type ProductView struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ImageURL    *string `json:"imageUrl"`
}

type UserView struct {
	Name string `json:"name"`
}

// EventPayload - тело события жизненного цикла в outbox и в потоке WatchOrders.
// Для orderDeleted Order отсутствует.
type EventPayload struct {
	Kind       string    `json:"kind"`
	OrderID    string    `json:"orderId"`
	Order      *View     `json:"order,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewView строит представление агрегата.
func NewView(agg domain.OrderAggregate) View {
	view := View{
		ID:            agg.ID,
		Client:        agg.Client,
		Status:        string(agg.Status),
		PaymentStatus: string(agg.PaymentStatus),
		Notes:         agg.Notes,
		TotalAmount:   FormatMoney(agg.TotalAmount),
		CompanyID:     agg.CompanyID,
		UserID:        agg.UserID,
		CreatedAt:     agg.CreatedAt,
		UpdatedAt:     agg.UpdatedAt,
		OrderItems:    make([]ItemView, 0, len(agg.Items)),
		User:          UserView{Name: agg.User.Name},
	}
	if agg.PaymentMethod != nil {
		method := string(*agg.PaymentMethod)
		view.PaymentMethod = &method
	}
	for _, item := range agg.Items {
		view.OrderItems = append(view.OrderItems, ItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     FormatMoney(item.Price),
			Product: ProductView{
				Name:        item.Product.Name,
				Description: item.Product.Description,
				ImageURL:    item.Product.ImageURL,
			},
		})
	}
	return view
}

// NewViews строит представления списка агрегатов.
func NewViews(aggs []domain.OrderAggregate) []View {
	views := make([]View, 0, len(aggs))
	for _, agg := range aggs {
		views = append(views, NewView(agg))
	}
	return views
}

// NewEventPayload строит тело события.
func NewEventPayload(event domain.OrderEvent) EventPayload {
	payload := EventPayload{
		Kind:       string(event.Kind),
		OrderID:    event.OrderID,
		OccurredAt: event.OccurredAt,
	}
	if event.Order != nil {
		view := NewView(*event.Order)
		payload.Order = &view
	}
	return payload
}

// MarshalEvent сериализует событие в JSON.
func MarshalEvent(event domain.OrderEvent) ([]byte, error) {
	return json.Marshal(NewEventPayload(event))
}

// FormatMoney печатает сумму с двумя знаками после запятой.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(moneyScale)
}

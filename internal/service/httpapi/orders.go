package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pos/internal/service/order"
)

const (
	// HeaderIdempotencyKey - заголовок с ключом идемпотентности для POST /orders.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotencyReplayed выставляется, когда ответ взят из кэша.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"

	createOrderMethod = "POST /orders"
)

type orderHandler struct {
	service OrderService
	guard   *idempotency.Guard
	logger  *log.Entry
}

type itemRequest struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// createOrderRequest - тело POST /orders. totalAmount, если пришёл, игнорируется.
type createOrderRequest struct {
	Client        string        `json:"client"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"paymentStatus"`
	PaymentMethod *string       `json:"paymentMethod"`
	Notes         *string       `json:"notes"`
	CompanyID     string        `json:"companyId"`
	UserID        string        `json:"userId"`
	OrderItems    []itemRequest `json:"orderItems"`
}

// updateOrderRequest - тело PATCH /orders/{id}. Отсутствующее поле не меняется,
// null в paymentMethod или notes очищает поле.
type updateOrderRequest struct {
	Client        *string          `json:"client"`
	Status        *string          `json:"status"`
	PaymentStatus *string          `json:"paymentStatus"`
	PaymentMethod nullable[string] `json:"paymentMethod"`
	Notes         nullable[string] `json:"notes"`
	CompanyID     *string          `json:"companyId"`
	UserID        *string          `json:"userId"`
	OrderItems    []itemRequest    `json:"orderItems"`
}

type itemResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *orderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.remove)
		r.Get("/items/{itemID}", h.getItem)
		r.Delete("/items/{itemID}", h.removeItem)
	})
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.guard == nil {
		status, payload := h.createOrder(r.Context(), body)
		writeJSON(w, status, payload)
		return
	}

	record, err := h.guard.Begin(r.Context(), key, idempotency.RequestHash(createOrderMethod, body))
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorBody{Error: string(domain.KindConflict), Message: err.Error()})
		return
	case errors.Is(err, idempotency.ErrRequestInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: string(domain.KindConflict), Message: err.Error()})
		return
	case err != nil:
		writeError(w, err)
		return
	case record != nil:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(HeaderIdempotencyReplayed, "true")
		w.WriteHeader(record.StatusCode)
		_, _ = w.Write(record.ResponseBody)
		return
	}

	status, payload := h.createOrder(r.Context(), body)
	encoded, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode create order response")
		h.guard.Abandon(r.Context(), key)
		writeError(w, err)
		return
	}
	encoded = append(encoded, '\n')
	switch {
	case status == http.StatusCreated:
		h.guard.Complete(r.Context(), key, status, encoded)
	case status >= http.StatusInternalServerError:
		// Сбой или отмена: заказ не создан, повтор с тем же ключом выполнится заново.
		h.guard.Abandon(r.Context(), key)
	default:
		h.guard.Fail(r.Context(), key, status, encoded)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// createOrder выполняет создание и возвращает статус с телом ответа,
// чтобы тот же результат можно было сохранить под idempotency-ключом.
func (h *orderHandler) createOrder(ctx context.Context, body []byte) (int, any) {
	var req createOrderRequest
	if err := decodeBody(body, &req); err != nil {
		return errorResponse(err)
	}
	header, items, err := req.toDomain()
	if err != nil {
		return errorResponse(err)
	}
	agg, err := h.service.Create(ctx, header, items)
	if err != nil {
		return errorResponse(err)
	}
	return http.StatusCreated, order.NewView(agg)
}

func (h *orderHandler) list(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order.NewViews(aggs))
}

func (h *orderHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateUUID("id", id); err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order.NewView(agg))
}

func (h *orderHandler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateUUID("id", id); err != nil {
		writeError(w, err)
		return
	}
	var req updateOrderRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	patch, items, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.service.Update(r.Context(), id, patch, items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order.NewView(agg))
}

func (h *orderHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateUUID("id", id); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.service.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *orderHandler) getItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), orderID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		ID:        item.ID,
		OrderID:   item.OrderID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Price:     order.FormatMoney(item.Price),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	})
}

func (h *orderHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.service.RemoveItem(r.Context(), orderID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order.NewView(agg))
}

func itemPath(r *http.Request) (string, string, error) {
	orderID := chi.URLParam(r, "id")
	if err := validateUUID("id", orderID); err != nil {
		return "", "", err
	}
	itemID := chi.URLParam(r, "itemID")
	if err := validateUUID("itemId", itemID); err != nil {
		return "", "", err
	}
	return orderID, itemID, nil
}

func (req createOrderRequest) toDomain() (domain.OrderHeader, []domain.ItemRequest, error) {
	if strings.TrimSpace(req.Client) == "" {
		return domain.OrderHeader{}, nil, domain.NewValidation("client", "is required")
	}
	if err := validateUUID("companyId", req.CompanyID); err != nil {
		return domain.OrderHeader{}, nil, err
	}
	if err := validateUUID("userId", req.UserID); err != nil {
		return domain.OrderHeader{}, nil, err
	}

	header := domain.OrderHeader{
		Client:        req.Client,
		Status:        domain.OrderStatus(req.Status),
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
		Notes:         req.Notes,
		CompanyID:     req.CompanyID,
		UserID:        req.UserID,
	}
	if req.PaymentMethod != nil {
		method := domain.PaymentMethod(*req.PaymentMethod)
		header.PaymentMethod = &method
	}
	if err := header.Validate(); err != nil {
		return domain.OrderHeader{}, nil, err
	}

	// Идентификаторы позиций при создании не принимаются: все позиции новые.
	items := make([]domain.ItemRequest, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		converted, err := item.toDomain(false)
		if err != nil {
			return domain.OrderHeader{}, nil, err
		}
		items = append(items, converted)
	}
	return header, items, nil
}

func (req updateOrderRequest) toDomain() (domain.OrderPatch, []domain.ItemRequest, error) {
	patch := domain.OrderPatch{
		Client:             req.Client,
		Notes:              req.Notes.Value,
		ClearNotes:         req.Notes.cleared(),
		ClearPaymentMethod: req.PaymentMethod.cleared(),
		CompanyID:          req.CompanyID,
		UserID:             req.UserID,
	}
	if req.Status != nil {
		status := domain.OrderStatus(*req.Status)
		patch.Status = &status
	}
	if req.PaymentStatus != nil {
		status := domain.PaymentStatus(*req.PaymentStatus)
		patch.PaymentStatus = &status
	}
	if req.PaymentMethod.Value != nil {
		method := domain.PaymentMethod(*req.PaymentMethod.Value)
		patch.PaymentMethod = &method
	}
	if req.CompanyID != nil {
		if err := validateUUID("companyId", *req.CompanyID); err != nil {
			return domain.OrderPatch{}, nil, err
		}
	}
	if req.UserID != nil {
		if err := validateUUID("userId", *req.UserID); err != nil {
			return domain.OrderPatch{}, nil, err
		}
	}
	if err := patch.Validate(); err != nil {
		return domain.OrderPatch{}, nil, err
	}

	if req.OrderItems == nil {
		return patch, nil, nil
	}
	items := make([]domain.ItemRequest, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		converted, err := item.toDomain(true)
		if err != nil {
			return domain.OrderPatch{}, nil, err
		}
		items = append(items, converted)
	}
	return patch, items, nil
}

func (req itemRequest) toDomain(keepID bool) (domain.ItemRequest, error) {
	if err := validateUUID("productId", req.ProductID); err != nil {
		return domain.ItemRequest{}, err
	}
	item := domain.ItemRequest{ProductID: req.ProductID, Quantity: req.Quantity}
	if keepID && req.ID != "" {
		if err := validateUUID("id", req.ID); err != nil {
			return domain.ItemRequest{}, err
		}
		item.ID = req.ID
	}
	if err := item.Validate(); err != nil {
		return domain.ItemRequest{}, err
	}
	return item, nil
}

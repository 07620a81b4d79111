package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestOrderHeaderValidate_Defaults(t *testing.T) {
	header := domain.OrderHeader{Client: "Table 1", CompanyID: "c-1", UserID: "u-1"}

	if err := header.Validate(); err != nil {
		t.Fatalf("expected valid header, got %v", err)
	}
	if header.Status != domain.OrderStatusPending {
		t.Fatalf("expected default status PENDING, got %s", header.Status)
	}
	if header.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected default payment status PENDING, got %s", header.PaymentStatus)
	}
}

func TestOrderHeaderValidate_Errors(t *testing.T) {
	badMethod := domain.PaymentMethod("BARTER")
	cases := []struct {
		name   string
		header domain.OrderHeader
	}{
		{name: "no client", header: domain.OrderHeader{CompanyID: "c-1", UserID: "u-1"}},
		{name: "no company", header: domain.OrderHeader{Client: "Table 1", UserID: "u-1"}},
		{name: "no user", header: domain.OrderHeader{Client: "Table 1", CompanyID: "c-1"}},
		{name: "bad status", header: domain.OrderHeader{Client: "Table 1", CompanyID: "c-1", UserID: "u-1", Status: "LOST"}},
		{name: "bad payment method", header: domain.OrderHeader{Client: "Table 1", CompanyID: "c-1", UserID: "u-1", PaymentMethod: &badMethod}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.header.Validate()
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestItemRequestValidate(t *testing.T) {
	if err := (domain.ItemRequest{ProductID: "p-1", Quantity: 1}).Validate(); err != nil {
		t.Fatalf("expected valid item, got %v", err)
	}
	if err := (domain.ItemRequest{ProductID: "p-1", Quantity: 0}).Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
	if err := (domain.ItemRequest{Quantity: 2}).Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing product, got %v", err)
	}
}

func TestOrderPatchApply(t *testing.T) {
	order := domain.Order{
		ID:            "order-1",
		Client:        "Table 1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
	status := domain.OrderStatusDelivered
	paid := domain.PaymentStatusPaid
	method := domain.PaymentMethodCard

	patch := domain.OrderPatch{
		Status:        &status,
		PaymentStatus: &paid,
		PaymentMethod: &method,
		Notes:         strPtr("no onions"),
	}
	if err := patch.Validate(); err != nil {
		t.Fatalf("expected valid patch, got %v", err)
	}
	patch.Apply(&order)

	if order.Client != "Table 1" {
		t.Fatalf("client must stay untouched, got %q", order.Client)
	}
	if order.Status != domain.OrderStatusDelivered || order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected statuses: %s/%s", order.Status, order.PaymentStatus)
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != domain.PaymentMethodCard {
		t.Fatalf("unexpected payment method: %v", order.PaymentMethod)
	}
	if order.Notes == nil || *order.Notes != "no onions" {
		t.Fatalf("unexpected notes: %v", order.Notes)
	}

	// Патч хранит собственные копии значений.
	method = domain.PaymentMethodCash
	if *order.PaymentMethod != domain.PaymentMethodCard {
		t.Fatal("order must not alias patch values")
	}
}

func TestOrderPatchApply_ClearsOptionalFields(t *testing.T) {
	method := domain.PaymentMethodPix
	order := domain.Order{
		Client:        "Table 1",
		PaymentMethod: &method,
		Notes:         strPtr("no onions"),
	}

	patch := domain.OrderPatch{ClearNotes: true}
	if err := patch.Validate(); err != nil {
		t.Fatalf("expected valid patch, got %v", err)
	}
	patch.Apply(&order)
	if order.Notes != nil {
		t.Fatalf("notes must be cleared, got %q", *order.Notes)
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != domain.PaymentMethodPix {
		t.Fatalf("payment method must stay untouched, got %v", order.PaymentMethod)
	}

	domain.OrderPatch{ClearPaymentMethod: true}.Apply(&order)
	if order.PaymentMethod != nil {
		t.Fatalf("payment method must be cleared, got %v", *order.PaymentMethod)
	}

	conflicting := domain.OrderPatch{Notes: strPtr("x"), ClearNotes: true}
	if err := conflicting.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for set+clear, got %v", err)
	}
}

func TestOrderPatchValidate_EmptyClient(t *testing.T) {
	patch := domain.OrderPatch{Client: strPtr("")}
	if err := patch.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

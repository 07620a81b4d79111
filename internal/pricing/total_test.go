package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestComputeTotal(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		want  string
	}{
		{name: "empty", lines: nil, want: "0"},
		{
			name: "two lines",
			lines: []Line{
				{Price: decimal.RequireFromString("10.00"), Quantity: 2},
				{Price: decimal.RequireFromString("15.00"), Quantity: 1},
			},
			want: "35",
		},
		{
			name: "no float drift",
			lines: []Line{
				{Price: decimal.RequireFromString("0.10"), Quantity: 3},
				{Price: decimal.RequireFromString("0.20"), Quantity: 1},
			},
			want: "0.5",
		},
		{
			name:  "free item",
			lines: []Line{{Price: decimal.Zero, Quantity: 4}},
			want:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotal(tt.lines)
			if err != nil {
				t.Fatalf("ComputeTotal failed: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("ComputeTotal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeTotal_RejectsMalformedLines(t *testing.T) {
	cases := []struct {
		name string
		line Line
	}{
		{name: "zero quantity", line: Line{Price: decimal.NewFromInt(1), Quantity: 0}},
		{name: "negative quantity", line: Line{Price: decimal.NewFromInt(1), Quantity: -2}},
		{name: "negative price", line: Line{Price: decimal.NewFromInt(-1), Quantity: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeTotal([]Line{tc.line})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLinesFromItems(t *testing.T) {
	items := []domain.OrderItem{
		{ID: "i-1", Price: decimal.RequireFromString("2.50"), Quantity: 2},
		{ID: "i-2", Price: decimal.RequireFromString("1.25"), Quantity: 4},
	}

	total, err := ComputeTotal(LinesFromItems(items))
	if err != nil {
		t.Fatalf("ComputeTotal failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected 10, got %s", total)
	}
}

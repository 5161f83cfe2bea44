package domain

import "testing"

func TestCentsRounding(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{0, 0},
		{1, 100},
		{19.99, 1999},
		{0.1, 10},
		{0.015, 2},
		{1099.35, 109935},
	}

	for _, tc := range cases {
		if got := Cents(tc.amount); got != tc.want {
			t.Errorf("Cents(%v) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestOrderTotalFloorsAtZero(t *testing.T) {
	if got := OrderTotal(1000, 80, 500, 2000); got != 0 {
		t.Errorf("expected zero total when credit exceeds order value, got %d", got)
	}
	if got := OrderTotal(1000, 80, 500, 300); got != 1280 {
		t.Errorf("unexpected total: %d", got)
	}
}

func TestRemainingCredit(t *testing.T) {
	if got := RemainingCredit(2000, 1000, 80, 500); got != 420 {
		t.Errorf("unexpected remaining credit: %d", got)
	}
	if got := RemainingCredit(300, 1000, 80, 500); got != 0 {
		t.Errorf("expected remaining credit floored at zero, got %d", got)
	}
}

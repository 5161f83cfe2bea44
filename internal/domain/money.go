package domain

import "math"

// Cents converts a two-decimal currency amount to integer cents, rounding
// half away from zero to absorb float representation error.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Dollars converts integer cents back to a two-decimal currency amount.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}

// OrderTotal computes the charged total in cents. Credit may exceed the order
// value; the total is floored at zero rather than going negative.
func OrderTotal(subtotal, tax, shipping, credit int64) int64 {
	total := subtotal + tax + shipping - credit
	if total < 0 {
		return 0
	}
	return total
}

// RemainingCredit computes the credit balance left after an order consumes
// credit: max(credit-(subtotal+tax+shipping), 0).
func RemainingCredit(credit, subtotal, tax, shipping int64) int64 {
	remaining := credit - (subtotal + tax + shipping)
	if remaining < 0 {
		return 0
	}
	return remaining
}

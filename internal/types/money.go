// README: Common money value object used across modules.
package types

const DefaultCurrency = "TWD"

// Money is an amount in the minor unit of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// Times returns the amount for n units (e.g. n seats at a per-seat price).
func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

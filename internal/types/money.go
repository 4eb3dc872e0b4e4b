// README: Common money value object used across modules.
package types

import "fmt"

const CurrencyINR = "INR"

// Money is an amount in the smallest whole unit of Currency (rupees for INR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func Rupees(amount int64) Money {
	return Money{Amount: amount, Currency: CurrencyINR}
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

func (m Money) String() string {
	if m.Currency == CurrencyINR {
		return fmt.Sprintf("₹%d", m.Amount)
	}
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

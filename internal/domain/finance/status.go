package finance

import "github.com/shopspring/decimal"

// PaymentStatus is the derived settlement state of an obligation or installment
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// Classify maps (total, allocated) to a status.
// Over-allocation classifies as Paid.
func Classify(total, allocated decimal.Decimal) PaymentStatus {
	switch {
	case allocated.LessThanOrEqual(decimal.Zero):
		return PaymentStatusUnpaid
	case allocated.GreaterThanOrEqual(total):
		return PaymentStatusPaid
	default:
		return PaymentStatusPartiallyPaid
	}
}

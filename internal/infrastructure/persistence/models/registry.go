package models

// All lists every settlement model, in dependency order.
func All() []any {
	return []any{
		&PaymentModel{},
		&SalesInvoiceModel{},
		&PurchaseInvoiceModel{},
		&AllocationModel{},
		&LoanModel{},
		&LoanPaymentModel{},
		&ExchangeRateModel{},
	}
}

// Package models contains the GORM persistence models for the settlement
// ledger. Domain types stay free of ORM tags; each model converts to and from
// its domain counterpart with ToDomain/FromDomain.
//
// Tables:
//   - payments: money received from customers or paid to suppliers
//   - sales_invoices, purchase_invoices: the two allocatable obligation variants
//   - invoice_payment_allocations: allocation rows linking the two
//   - loans, loan_payments: inputs to the installment projector
//   - exchange_rates: daily rate table relative to the base currency
package models

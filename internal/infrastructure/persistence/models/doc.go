// Package models contains the GORM persistence models of the ledger.
// Domain entities stay free of ORM tags; each model maps to one table and
// converts with ToDomain and a ...FromDomain constructor.
//
// Tables:
//   - products, batches: stock projection and batch ledger (inventory.go)
//   - bills, bill_items, installments: the billing ledger (billing.go)
//   - sequence_counters: per-year bill number counters (sequence.go)
package models

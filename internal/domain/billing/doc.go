// Package billing provides the bill ledger of the shop: sales (Bill), the partial
// payments recorded against them (Installment) and the year-scoped bill numbering.
//
// Key rules:
//   - A bill's PaidAmount, PendingAmount and Status are derived from the sum of its
//     live installments (Recalculate) and are never patched from outside.
//   - 0 <= PaidAmount <= TotalAmount and PendingAmount = TotalAmount - PaidAmount
//     after every mutation.
//   - A single customer payment can be spread over several open bills oldest-first
//     (PlanBulkAllocation); every installment created that way shares one receipt number.
//   - Bill numbers are {year}-{seq:04d}, issued by an atomic per-year counter.
package billing

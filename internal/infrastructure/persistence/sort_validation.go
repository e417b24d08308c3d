package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, DESC by default
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField if it is whitelisted, defaultField otherwise.
// Sort fields are interpolated into ORDER BY, so only whitelisted names pass.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// BillSortFields contains allowed sort fields for bills
var BillSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"bill_number":    true,
	"customer_name":  true,
	"total_amount":   true,
	"pending_amount": true,
	"status":         true,
}

// BatchSortFields contains allowed sort fields for batches
var BatchSortFields = map[string]bool{
	"created_at":      true,
	"received_at":     true,
	"batch_number":    true,
	"expiry_date":     true,
	"remaining_stock": true,
}

// likePattern builds a case-insensitive substring pattern for LOWER(col) LIKE ?
func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.ToLower(strings.TrimSpace(search)))
	return "%" + escaped + "%"
}

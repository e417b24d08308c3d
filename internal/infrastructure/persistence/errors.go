package persistence

import (
	"errors"
	"fmt"

	"github.com/agrosupply/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate locks the selected rows until the transaction ends.
// SQLite ignores the clause; its writes are serialised anyway.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// translateError maps gorm errors to domain errors. It relies on
// gorm.Config.TranslateError so that unique violations surface as
// gorm.ErrDuplicatedKey on every dialect.
func translateError(err error, resource, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewNotFoundError(resource, key)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewDomainError(shared.CodeConflict, fmt.Sprintf("%s %s already exists", resource, key))
	default:
		return fmt.Errorf("%s %s: %w", resource, key, err)
	}
}

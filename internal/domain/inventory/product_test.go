package inventory

import (
	"testing"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_StockProjection(t *testing.T) {
	p, err := NewProduct("Urea 45kg", "UREA-45", decimal.NewFromInt(266))
	require.NoError(t, err)
	assert.Zero(t, p.RemainingStock)

	p.Replenish(10)
	assert.True(t, p.CanSupply(10))
	assert.False(t, p.CanSupply(11))

	require.NoError(t, p.Withdraw(4))
	assert.Equal(t, int64(6), p.RemainingStock)

	err = p.Withdraw(7)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Urea 45kg")
	assert.Equal(t, int64(6), p.RemainingStock)
}

func TestNewProduct_Validation(t *testing.T) {
	_, err := NewProduct("", "X", decimal.Zero)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewProduct("Seeds", "X", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestProduct_EnsureSellable(t *testing.T) {
	p, err := NewProduct("DAP", "DAP-50", decimal.NewFromInt(1350))
	require.NoError(t, err)
	assert.NoError(t, p.EnsureSellable())

	p.Lifecycle = shared.LifecycleBlocked
	assert.ErrorIs(t, p.EnsureSellable(), shared.ErrBlocked)

	p.Lifecycle = shared.LifecycleDeleted
	assert.ErrorIs(t, p.EnsureSellable(), shared.ErrNotFound)
}

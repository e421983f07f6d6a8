package stock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tebahq/teba/internal/shared"
)

func TestCreditDebitSequence(t *testing.T) {
	level := Level{ProductID: 1, LocationID: 1}

	var err error
	credits := []int64{10, 5, 7}
	debits := []int64{3, 9}
	for _, qty := range credits {
		level, err = level.Credit(qty)
		require.NoError(t, err)
	}
	for _, qty := range debits {
		level, err = level.Debit(qty)
		require.NoError(t, err)
	}
	// 22 in, 12 out.
	require.EqualValues(t, 10, level.Quantity)
}

func TestDebitInsufficient(t *testing.T) {
	level := Level{ProductID: 1, LocationID: 1, Quantity: 2}

	_, err := level.Debit(5)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	// The original level is untouched by a failed debit.
	require.EqualValues(t, 2, level.Quantity)
}

func TestDebitExact(t *testing.T) {
	level := Level{Quantity: 4}
	level, err := level.Debit(4)
	require.NoError(t, err)
	require.EqualValues(t, 0, level.Quantity)

	_, err = level.Debit(1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestNonPositiveQuantities(t *testing.T) {
	level := Level{Quantity: 4}

	_, err := level.Credit(0)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = level.Credit(-3)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = level.Debit(0)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = level.WithQuantity(-1)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	level, err = level.WithQuantity(0)
	require.NoError(t, err)
	require.EqualValues(t, 0, level.Quantity)
}

package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaces(t *testing.T) {
	for _, v := range []string{"0", "10", "0.01", "10.50", "10.500", "-3.25"} {
		assert.NoError(t, Places("amount", decimal.RequireFromString(v), MoneyPlaces), v)
	}
	for _, v := range []string{"0.005", "12.345", "-0.001"} {
		err := Places("amount", decimal.RequireFromString(v), MoneyPlaces)
		require.ErrorIs(t, err, ErrInvalid, v)

		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
	}
}

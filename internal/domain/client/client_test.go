package client

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		profile   Profile
		cashback  decimal.Decimal
		wantField string
	}{
		{
			name:     "valid",
			profile:  Profile{FullName: "Ivan Petrov", Phone: "+79990000000"},
			cashback: decimal.NewFromInt(100),
		},
		{
			name:      "empty name",
			profile:   Profile{FullName: "  ", Phone: "+79990000000"},
			wantField: "fullName",
		},
		{
			name:      "empty phone",
			profile:   Profile{FullName: "Ivan Petrov"},
			wantField: "phone",
		},
		{
			name:     "trailing zeros",
			profile:  Profile{FullName: "Ivan Petrov", Phone: "+79990000000"},
			cashback: decimal.RequireFromString("10.500"),
		},
		{
			name:      "sub-cent cashback",
			profile:   Profile{FullName: "Ivan Petrov", Phone: "1"},
			cashback:  decimal.RequireFromString("0.005"),
			wantField: "cashback",
		},
		{
			name:      "negative cashback",
			profile:   Profile{FullName: "Ivan Petrov", Phone: "1"},
			cashback:  decimal.NewFromInt(-1),
			wantField: "cashback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.profile, tt.cashback)
			if tt.wantField != "" {
				require.ErrorIs(t, err, validation.ErrInvalid)
				var verr *validation.Error
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.profile.FullName, c.FullName)
			assert.True(t, tt.cashback.Equal(c.Cashback))
		})
	}
}

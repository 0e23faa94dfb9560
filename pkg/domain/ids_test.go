package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "courier/pkg/domain-errors"
)

func TestParseDeliveryID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDeliveryID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDeliveryID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseDeliveryID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseDeliveryID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, DeliveryID(valid), id)
		assert.Equal(t, valid.String(), id.String())
	})
}

func TestParseID_Hostile(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE events;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errDelivery := ParseDeliveryID(tt.input)
			_, errPayment := ParsePaymentID(tt.input)
			if tt.wantErr {
				require.Error(t, errDelivery)
				require.Error(t, errPayment)
				assert.True(t, dErrors.HasCode(errPayment, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, errDelivery)
				require.NoError(t, errPayment)
			}
		})
	}
}

func TestSoftReferences(t *testing.T) {
	assert.True(t, OrderID("  ").IsZero())
	assert.False(t, OrderID("order-1").IsZero())
	assert.True(t, UserID("").IsZero())
	assert.Equal(t, "user-1", UserID("user-1").String())
}

func TestIDsMarshalAsText(t *testing.T) {
	deliveryID := NewDeliveryID()
	b, err := deliveryID.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, deliveryID.String(), string(b))

	var back DeliveryID
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, deliveryID, back)

	var payment PaymentID
	assert.Error(t, payment.UnmarshalText([]byte("nope")))
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("charge: %w", &ConflictError{Kind: ConflictAlreadyPaid, OrderID: "ord-1", GatewayStatus: "settlement"})

	assert.True(t, errors.Is(err, ErrChargeAlreadyPaid))
	assert.True(t, errors.Is(err, ErrOrderIDConflict))
	assert.False(t, errors.Is(err, ErrChargeAlreadyPending))
	assert.Contains(t, err.Error(), "settlement")

	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, ConflictAlreadyPaid, ce.Kind)
}

func TestConflictErrorUnknownWrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := &ConflictError{Kind: ConflictUnknown, OrderID: "ord-2", Err: cause}

	assert.True(t, errors.Is(err, ErrChargeUnknownConflict))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "timeout")
}

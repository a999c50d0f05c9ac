package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cartsync/internal/cart"
	"github.com/mesh-intelligence/cartsync/internal/gateway"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "missing row id", err: fmt.Errorf("update: %w", gateway.ErrMissingRowID), code: exitUserError},
		{name: "empty product id", err: cart.ErrEmptyProductID, code: exitUserError},
		{name: "rejected by server", err: &gateway.RequestError{Status: 400, Message: "Insufficient stock"}, code: exitUserError},
		{name: "server failure", err: &gateway.RequestError{Status: 503, Message: "down"}, code: exitSysError},
		{name: "transport failure", err: &gateway.RequestError{Message: "dial", Err: errors.New("refused")}, code: exitSysError},
		{name: "oversized body", err: &gateway.RequestError{Status: 200, Message: "too large", Err: gateway.ErrBodyTooLarge}, code: exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *cliError
			require.ErrorAs(t, classify(tt.err), &ce)
			assert.Equal(t, tt.code, ce.code)
		})
	}
	assert.NoError(t, classify(nil))
}

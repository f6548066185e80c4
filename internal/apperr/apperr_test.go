package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad %s", "field"), http.StatusBadRequest},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("admins only"), http.StatusForbidden},
		{NotFound("order not found"), http.StatusNotFound},
		{Conflict("email taken"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("load order: %w", NotFound("order not found")), http.StatusNotFound},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "failed to load order")

	assert.Equal(t, "Internal Server Error", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "Order Not Found", PublicMessage(fmt.Errorf("get: %w", NotFound("Order Not Found"))))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	sentinel := Conflict("Product is out of stock")
	wrapped := fmt.Errorf("reserve stock: %w", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(nil, KindConflict))
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/apperr"
)

type signupRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Address struct {
		City string `json:"city" validate:"required"`
	} `json:"address"`
}

func TestDecodeJSONValidates(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{``, "Request body is required"},
		{`{`, "Invalid request body"},
		{`{"email":"a@vj.lk","address":{"city":"Kandy"}}`, "name is required"},
		{`{"name":"A","email":"nope","address":{"city":"Kandy"}}`, "email must be a valid email address"},
		{`{"name":"A","email":"a@vj.lk"}`, "address.city is required"},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		var dst signupRequest
		err := DecodeJSON(r, &dst)
		require.Error(t, err, tc.body)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, tc.want, apperr.PublicMessage(err))
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"A","email":"a@vj.lk","address":{"city":"Kandy"}}`))
	var dst signupRequest
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "Kandy", dst.Address.City)
}

func TestRespondWithAppErrorHidesInternalCause(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	RespondWithAppError(w, logger, r, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Internal Server Error", body.Message)

	w = httptest.NewRecorder()
	RespondWithAppError(w, logger, r, apperr.NotFound("Order Not Found"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Order Not Found")
}

package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, http.StatusForbidden, "forbidden")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"error":"forbidden"}`, rr.Body.String())
}

func TestOKEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, http.StatusOK, map[string]int{"n": 1})
	assert.JSONEq(t, `{"success":true,"data":{"n":1}}`, rr.Body.String())
}

func TestRespondErrorMapping(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("store %w", ErrNotFound):   http.StatusNotFound,
		fmt.Errorf("member %w", ErrDuplicate): http.StatusConflict,
		ErrValidation:                         http.StatusBadRequest,
		ErrForbidden:                          http.StatusForbidden,
		ErrUnauthorized:                       http.StatusUnauthorized,
		fmt.Errorf("pool exhausted"):          http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		assert.Equal(t, status, rr.Code, err.Error())
		var body Envelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.False(t, body.Success)
	}

	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("secret dsn leaked"))
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "a", target.Name)
}

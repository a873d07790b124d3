package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	req.Header.Set("Content-Type", "application/json")
	assert.True(t, ReadJSON(httptest.NewRecorder(), req, &v))
	assert.Equal(t, "x", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	assert.False(t, ReadJSON(rec, req, &v))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`name=x`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	assert.False(t, ReadJSON(rec, req, &v))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Body vacío es válido; los controllers validan campos requeridos.
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.True(t, ReadJSON(httptest.NewRecorder(), req, &v))
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// TestNoStore verifies the header is set on success and on error responses.
func TestNoStore(t *testing.T) {
	t.Parallel()

	e := echo.New()

	for _, next := range []echo.HandlerFunc{
		func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		func(echo.Context) error { return errors.New("boom") },
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		_ = NoStore()(next)(c)

		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	}
}

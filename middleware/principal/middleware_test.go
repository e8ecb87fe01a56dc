package principal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/bookwell/authkit/middleware/jwtauth"
)

type mockProvider struct {
	principals map[uint]any
	err        error
}

func (m *mockProvider) GetPrincipal(c echo.Context, userID uint) (any, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, exists := m.principals[userID]; exists {
		return p, nil
	}
	return nil, nil
}

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestMiddleware_NoProvider(t *testing.T) {
	middleware := Middleware(nil)

	c, rec := newContext()
	err := middleware(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if GetCurrentPrincipal(c) != nil {
		t.Error("expected no principal to be set")
	}
}

func TestMiddlewareWithConfig(t *testing.T) {
	t.Run("resolves authenticated principal", func(t *testing.T) {
		provider := &mockProvider{
			principals: map[uint]any{42: "account-42"},
		}
		middleware := MiddlewareWithConfig(Config{Provider: provider})

		c, _ := newContext()
		c.Set(jwtauth.UserIDKey, uint(42))

		err := middleware(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if GetCurrentPrincipal(c) != "account-42" {
			t.Errorf("expected principal account-42, got %v", GetCurrentPrincipal(c))
		}
	})

	t.Run("unauthenticated request passes through", func(t *testing.T) {
		provider := &mockProvider{
			principals: map[uint]any{42: "account-42"},
		}
		middleware := MiddlewareWithConfig(Config{Provider: provider})

		c, rec := newContext()
		err := middleware(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if GetCurrentPrincipal(c) != nil {
			t.Error("expected no principal to be set")
		}
	})

	t.Run("provider error is not fatal", func(t *testing.T) {
		provider := &mockProvider{err: errors.New("store offline")}
		middleware := MiddlewareWithConfig(Config{Provider: provider})

		c, rec := newContext()
		c.Set(jwtauth.UserIDKey, uint(42))

		err := middleware(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("expected request to succeed, got %d", rec.Code)
		}
		if GetCurrentPrincipal(c) != nil {
			t.Error("expected no principal on provider error")
		}
	})

	t.Run("unknown user leaves context empty", func(t *testing.T) {
		provider := &mockProvider{principals: map[uint]any{}}
		middleware := MiddlewareWithConfig(Config{Provider: provider})

		c, _ := newContext()
		c.Set(jwtauth.UserIDKey, uint(7))

		err := middleware(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if GetCurrentPrincipal(c) != nil {
			t.Error("expected no principal for unknown user")
		}
	})
}

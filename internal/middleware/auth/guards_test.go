package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	authenticated bool
	admin         bool
}

func (f *fakeSession) Authenticated() bool { return f.authenticated }
func (f *fakeSession) IsAdmin() bool       { return f.admin }

func run(t *testing.T, mw echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, handler(c))
	return rec
}

func TestRequireLogin(t *testing.T) {
	t.Parallel()

	t.Run("logged out redirects to login", func(t *testing.T) {
		t.Parallel()
		rec := run(t, RequireLogin(&fakeSession{}))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("logged in passes through", func(t *testing.T) {
		t.Parallel()
		rec := run(t, RequireLogin(&fakeSession{authenticated: true}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		session      *fakeSession
		wantCode     int
		wantLocation string
	}{
		{
			name:         "logged out redirects to login",
			session:      &fakeSession{},
			wantCode:     http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:         "non-admin redirects home",
			session:      &fakeSession{authenticated: true},
			wantCode:     http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name:     "admin passes through",
			session:  &fakeSession{authenticated: true, admin: true},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := run(t, RequireAdmin(tt.session))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get(echo.HeaderLocation))
			}
		})
	}
}

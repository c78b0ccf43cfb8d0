package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
)

func staticToken(tok string) TokenSource {
	return func() string { return tok }
}

func TestClient_AttachesBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]models.Product{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, staticToken("tok-123"))
	_, err := c.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_EmptyTokenSendsUnauthenticated(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]models.Category{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, staticToken(""))
	_, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrAuth)
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrAuth)
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:   "other status carries body",
			status: http.StatusConflict,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusConflict, se.Status)
				assert.Contains(t, se.Body, "already registered")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`Email is already registered`))
			}))
			t.Cleanup(srv.Close)

			c := NewClient(srv.URL, nil)
			_, err := c.CurrentUser(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_FindCartLineQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]models.CartLine{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, nil)
	_, err := c.FindCartLine(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "userId=7")
	assert.Contains(t, gotQuery, "productId=42")
}

func TestClient_CreateOrderSendsIdempotencyKey(t *testing.T) {
	t.Parallel()

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		var o models.Order
		_ = json.NewDecoder(r.Body).Decode(&o)
		o.ID = 1
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(o)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, nil)
	order := &models.Order{UserID: 1, ProductID: 2, Quantity: 3, TotalPrice: 30, Status: models.OrderStatusPending}
	placed, err := c.CreateOrder(context.Background(), order, "key-abc-0")
	require.NoError(t, err)
	assert.Equal(t, "key-abc-0", gotKey)
	assert.Equal(t, uint(1), placed.ID)
	assert.Equal(t, float64(30), placed.TotalPrice)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/models"
)

var (
	ErrAuth     = errors.New("authentication rejected")
	ErrNotFound = errors.New("not found")
)

// StatusError is returned for non-2xx responses that are not auth or
// not-found failures, so callers can surface the backend's own message
// (duplicate email on register, validation complaints and so on).
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Body)
}

// TokenSource supplies the bearer token for each request. An empty string
// sends the request unauthenticated.
type TokenSource func() string

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

func NewClient(backendURL string, token TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(backendURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type AuthResponse struct {
	User        models.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	req := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, email, password, role string) (*AuthResponse, error) {
	req := map[string]string{"email": email, "password": password, "role": role}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Product(ctx context.Context, id uint) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPost, "/products", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id uint, p *models.Product) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d", id), nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil, nil, nil)
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CartLines(ctx context.Context, userID uint) ([]models.CartLine, error) {
	q := url.Values{}
	q.Set("userId", fmt.Sprint(userID))
	var out []models.CartLine
	if err := c.do(ctx, http.MethodGet, "/cart?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindCartLine is the existence check behind the add-to-cart branch: at most
// one line exists per (user, product) pair on a well-behaved backend.
func (c *Client) FindCartLine(ctx context.Context, userID, productID uint) ([]models.CartLine, error) {
	q := url.Values{}
	q.Set("userId", fmt.Sprint(userID))
	q.Set("productId", fmt.Sprint(productID))
	var out []models.CartLine
	if err := c.do(ctx, http.MethodGet, "/cart?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCartLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error) {
	var out models.CartLine
	if err := c.do(ctx, http.MethodPost, "/cart", nil, line, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PatchCartLine(ctx context.Context, id, quantity uint) (*models.CartLine, error) {
	req := map[string]uint{"quantity": quantity}
	var out models.CartLine
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/cart/%d", id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCartLine(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/cart/%d", id), nil, nil, nil)
}

// Orders without a user filter; the backend only honors this for admins.
func (c *Client) Orders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OrdersByUser(ctx context.Context, userID uint) ([]models.Order, error) {
	q := url.Values{}
	q.Set("userId", fmt.Sprint(userID))
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, o *models.Order, idempotencyKey string) (*models.Order, error) {
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	var out models.Order
	if err := c.do(ctx, http.MethodPost, "/orders", h, o, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

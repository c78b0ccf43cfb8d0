// Package backendtest is an in-process stand-in for the upstream shop
// backend, implementing the REST contract the storefront consumes. Test
// suites mount it in an httptest.Server; it keeps everything in memory.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/hash"
	"storefront/internal/models"
)

type Server struct {
	mu     sync.Mutex
	secret []byte
	nextID uint

	users      map[uint]models.User
	passwords  map[string]string
	byEmail    map[string]uint
	products   map[uint]models.Product
	categories []models.Category
	cart       map[uint]models.CartLine
	orders     map[uint]models.Order
	idemSeen   map[string]uint

	// OrderFailAfter makes POST /orders return 500 once that many orders
	// exist. Zero disables the injection.
	OrderFailAfter int

	failNext int
}

// FailNextOrders refuses the next n order creations outright.
func (s *Server) FailNextOrders(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

func New() *Server {
	return &Server{
		secret:    []byte("backendtest-secret"),
		users:     make(map[uint]models.User),
		passwords: make(map[string]string),
		byEmail:   make(map[string]uint),
		products:  make(map[uint]models.Product),
		cart:      make(map[uint]models.CartLine),
		orders:    make(map[uint]models.Order),
		idemSeen:  make(map[string]uint),
	}
}

func (s *Server) id() uint {
	s.nextID++
	return s.nextID
}

func (s *Server) AddUser(email, password, role string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashed, err := hash.Password(password)
	if err != nil {
		panic(fmt.Sprintf("backendtest: hash password: %v", err))
	}
	u := models.User{ID: s.id(), Email: email, Role: role}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	s.passwords[email] = hashed
	return u
}

func (s *Server) AddProduct(name string, price float64, category string) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.Product{ID: s.id(), Name: name, Price: price, Category: category}
	s.products[p.ID] = p
	return p
}

func (s *Server) RemoveProduct(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Server) SetCategories(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.categories = nil
	for i, n := range names {
		s.categories = append(s.categories, models.Category{ID: uint(i + 1), Name: n})
	}
}

// TokenFor mints a backend token directly, so tests can persist sessions
// with chosen lifetimes without going through /login.
func (s *Server) TokenFor(userID uint, ttl time.Duration) string {
	return s.mintToken(userID, time.Now().Add(ttl))
}

func (s *Server) mintToken(userID uint, exp time.Time) string {
	s.mu.Lock()
	role := s.users[userID].Role
	s.mu.Unlock()

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return tok
}

func (s *Server) userFromToken(r *http.Request) (*models.User, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return nil, false
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil })
	if err != nil || !tok.Valid {
		return nil, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uint(sub)]
	if !ok {
		return nil, false
	}
	return &u, true
}

// CartSize reports the server-side line count for a user.
func (s *Server) CartSize(userID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, line := range s.cart {
		if line.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Server) AllOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/login" && r.Method == http.MethodPost:
		s.login(w, r)
	case path == "/register" && r.Method == http.MethodPost:
		s.register(w, r)
	case path == "/users/me" && r.Method == http.MethodGet:
		s.currentUser(w, r)
	case path == "/products":
		s.productsCollection(w, r)
	case strings.HasPrefix(path, "/products/"):
		s.productItem(w, r, strings.TrimPrefix(path, "/products/"))
	case path == "/categories" && r.Method == http.MethodGet:
		s.listCategories(w, r)
	case path == "/cart":
		s.cartCollection(w, r)
	case strings.HasPrefix(path, "/cart/"):
		s.cartItem(w, r, strings.TrimPrefix(path, "/cart/"))
	case path == "/orders":
		s.ordersCollection(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	id, ok := s.byEmail[req.Email]
	hashed := s.passwords[req.Email]
	user := s.users[id]
	s.mu.Unlock()

	if !ok || !hash.Check(hashed, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"accessToken": s.mintToken(user.ID, time.Now().Add(time.Hour)),
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	s.mu.Lock()
	_, exists := s.byEmail[req.Email]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Email is already registered"})
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	user := s.AddUser(req.Email, req.Password, role)
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":        user,
		"accessToken": s.mintToken(user.ID, time.Now().Add(time.Hour)),
	})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) productsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		out := make([]models.Product, 0, len(s.products))
		for _, p := range s.products {
			out = append(out, p)
		}
		s.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		user, ok := s.userFromToken(r)
		if !ok || user.Role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		s.mu.Lock()
		p.ID = s.id()
		s.products[p.ID] = p
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, p)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) productItem(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		p, ok := s.products[uint(id)]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut, http.MethodDelete:
		user, ok := s.userFromToken(r)
		if !ok || user.Role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.products[uint(id)]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		if r.Method == http.MethodDelete {
			delete(s.products, uint(id))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		p.ID = uint(id)
		s.products[p.ID] = p
		writeJSON(w, http.StatusOK, p)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]models.Category(nil), s.categories...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) cartCollection(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		var productFilter uint
		if v := q.Get("productId"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid productId"})
				return
			}
			productFilter = uint(n)
		}
		userFilter := user.ID
		if v := q.Get("userId"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid userId"})
				return
			}
			userFilter = uint(n)
		}

		s.mu.Lock()
		out := make([]models.CartLine, 0)
		for _, line := range s.cart {
			if line.UserID != userFilter {
				continue
			}
			if productFilter != 0 && line.ProductID != productFilter {
				continue
			}
			out = append(out, line)
		}
		s.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var line models.CartLine
		if err := json.NewDecoder(r.Body).Decode(&line); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		s.mu.Lock()
		line.ID = s.id()
		line.Product = nil
		s.cart[line.ID] = line
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, line)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) cartItem(w http.ResponseWriter, r *http.Request, rawID string) {
	if _, ok := s.userFromToken(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.cart[uint(id)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Quantity uint `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		line.Quantity = req.Quantity
		s.cart[line.ID] = line
		writeJSON(w, http.StatusOK, line)
	case http.MethodDelete:
		delete(s.cart, uint(id))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) ordersCollection(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userFromToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		scope := uint(0)
		if v := q.Get("userId"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid userId"})
				return
			}
			scope = uint(n)
		} else if user.Role != models.RoleAdmin {
			// Unscoped listing is an admin privilege.
			scope = user.ID
		}

		s.mu.Lock()
		out := make([]models.Order, 0)
		for _, o := range s.orders {
			if scope != 0 && o.UserID != scope {
				continue
			}
			out = append(out, o)
		}
		s.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		key := r.Header.Get("Idempotency-Key")

		s.mu.Lock()
		if key != "" {
			if id, seen := s.idemSeen[key]; seen {
				o := s.orders[id]
				s.mu.Unlock()
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
		if s.failNext > 0 {
			s.failNext--
			s.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order storage unavailable"})
			return
		}
		if s.OrderFailAfter > 0 && len(s.orders) >= s.OrderFailAfter {
			s.mu.Unlock()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order storage unavailable"})
			return
		}
		s.mu.Unlock()

		var o models.Order
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		s.mu.Lock()
		o.ID = s.id()
		s.orders[o.ID] = o
		if key != "" {
			s.idemSeen[key] = o.ID
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, o)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

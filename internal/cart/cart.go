package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/models"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation")
)

// Backend is the slice of the upstream contract the cart store needs.
type Backend interface {
	CartLines(ctx context.Context, userID uint) ([]models.CartLine, error)
	FindCartLine(ctx context.Context, userID, productID uint) ([]models.CartLine, error)
	CreateCartLine(ctx context.Context, line *models.CartLine) (*models.CartLine, error)
	PatchCartLine(ctx context.Context, id, quantity uint) (*models.CartLine, error)
	DeleteCartLine(ctx context.Context, id uint) error
	Product(ctx context.Context, id uint) (*models.Product, error)
}

// Identity is what the cart needs to know about the session.
type Identity interface {
	UserID() (uint, bool)
}

// Store mirrors the authenticated user's server-side cart. The server stays
// authoritative: every mutation ends with a full refresh, never an
// optimistic merge. opMu serializes mutations so the existence-check-then-
// branch in Add cannot race against itself and split one line into two.
type Store struct {
	backend  Backend
	identity Identity
	events   events.Publisher

	opMu    sync.Mutex
	stateMu sync.RWMutex
	lines   []models.CartLine
}

func New(b Backend, id Identity, ev events.Publisher) *Store {
	if ev == nil {
		ev = events.Nop{}
	}
	return &Store{backend: b, identity: id, events: ev}
}

func (s *Store) Lines() []models.CartLine {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Total is Σ price × quantity over the current lines. A line whose product
// snapshot is missing counts as zero rather than failing.
func (s *Store) Total() float64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	var total float64
	for _, line := range s.lines {
		if line.Product == nil {
			continue
		}
		total += line.Product.Price * float64(line.Quantity)
	}
	return total
}

// ResetLocal empties the in-memory mirror without touching the server.
// Called when the identity transitions to logged out.
func (s *Store) ResetLocal() {
	s.stateMu.Lock()
	s.lines = nil
	s.stateMu.Unlock()
}

// Refresh replaces the local mirror with the server's cart, joined with
// product snapshots.
func (s *Store) Refresh(ctx context.Context) error {
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrUnauthenticated
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.refresh(ctx, userID)
}

func (s *Store) refresh(ctx context.Context, userID uint) error {
	lines, err := s.backend.CartLines(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch cart: %w", err)
	}

	l := logging.FromContext(ctx)
	for i := range lines {
		if lines[i].Product != nil {
			continue
		}
		p, err := s.backend.Product(ctx, lines[i].ProductID)
		if err != nil {
			// Line stays without a snapshot; Total treats it as zero.
			l.Warn("product lookup for cart line failed", "product_id", lines[i].ProductID, "error", err)
			continue
		}
		lines[i].Product = p
	}

	s.stateMu.Lock()
	s.lines = lines
	s.stateMu.Unlock()
	return nil
}

// Add puts quantity of a product in the cart. An existing (user, product)
// line is incremented, never duplicated. Quantity defaults to 1.
func (s *Store) Add(ctx context.Context, productID, quantity uint) error {
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrUnauthenticated
	}
	if productID == 0 {
		return fmt.Errorf("product id required: %w", ErrValidation)
	}
	if quantity == 0 {
		quantity = 1
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	existing, err := s.backend.FindCartLine(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("check cart line: %w", err)
	}

	if len(existing) > 0 {
		line := existing[0]
		if _, err := s.backend.PatchCartLine(ctx, line.ID, line.Quantity+quantity); err != nil {
			return fmt.Errorf("update cart line: %w", err)
		}
	} else {
		line := models.CartLine{UserID: userID, ProductID: productID, Quantity: quantity}
		if _, err := s.backend.CreateCartLine(ctx, &line); err != nil {
			return fmt.Errorf("create cart line: %w", err)
		}
	}

	s.publish(ctx, userID, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": productID,
		"quantity":  quantity,
	})

	return s.refresh(ctx, userID)
}

// Update sets a line's quantity. Zero is not a quantity; removal is.
func (s *Store) Update(ctx context.Context, lineID, quantity uint) error {
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrUnauthenticated
	}
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, remove the line instead: %w", ErrValidation)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, err := s.backend.PatchCartLine(ctx, lineID, quantity); err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}

	s.publish(ctx, userID, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"lineID":   lineID,
		"quantity": quantity,
	})

	return s.refresh(ctx, userID)
}

func (s *Store) Remove(ctx context.Context, lineID uint) error {
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrUnauthenticated
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.backend.DeleteCartLine(ctx, lineID); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}

	s.publish(ctx, userID, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"lineID": lineID,
	})

	return s.refresh(ctx, userID)
}

// Clear deletes every current line one at a time, then empties the mirror.
// A failure part-way leaves the server cart as-is; the mirror is re-synced
// so it never claims more than the server holds.
func (s *Store) Clear(ctx context.Context) error {
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrUnauthenticated
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stateMu.RLock()
	lines := make([]models.CartLine, len(s.lines))
	copy(lines, s.lines)
	s.stateMu.RUnlock()

	for _, line := range lines {
		if err := s.backend.DeleteCartLine(ctx, line.ID); err != nil {
			if rerr := s.refresh(ctx, userID); rerr != nil {
				logging.FromContext(ctx).Error("cart resync after failed clear", "error", rerr)
			}
			return fmt.Errorf("clear cart line %d: %w", line.ID, err)
		}
	}

	s.stateMu.Lock()
	s.lines = nil
	s.stateMu.Unlock()

	s.publish(ctx, userID, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return nil
}

func (s *Store) publish(ctx context.Context, userID uint, event map[string]any) {
	if err := s.events.Publish(ctx, events.TopicCartEvents, fmt.Sprint(userID), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/models"
)

type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInFlight        = errors.New("checkout already processing")
	ErrPartialCheckout = errors.New("partial checkout")
)

// Cart is what the workflow consumes from the cart store.
type Cart interface {
	Lines() []models.CartLine
	Clear(ctx context.Context) error
}

// Backend is the slice of the upstream contract the workflow needs.
type Backend interface {
	CreateOrder(ctx context.Context, o *models.Order, idempotencyKey string) (*models.Order, error)
}

// Workflow converts the cart into one order per line, then clears the cart.
// Idle → Processing → (Done | Failed); a second Run while Processing is
// refused, which is the only in-flight guard the UI gets.
type Workflow struct {
	cart    Cart
	backend Backend
	events  events.Publisher
	now     func() time.Time

	mu    sync.Mutex
	state State
	key   string
}

func New(cart Cart, b Backend, ev events.Publisher) *Workflow {
	if ev == nil {
		ev = events.Nop{}
	}
	return &Workflow{cart: cart, backend: b, events: ev, now: time.Now, state: StateIdle}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run places the orders sequentially. Orders share an idempotency key
// suffixed by line id; the key survives a failed run and is only rotated
// after success, so retrying after a partial failure resends the already-
// created lines under the same keys and a backend that honors the header
// does not duplicate them. There is no rollback: orders created before a
// failure stay created.
func (w *Workflow) Run(ctx context.Context) ([]models.Order, error) {
	w.mu.Lock()
	if w.state == StateProcessing {
		w.mu.Unlock()
		return nil, ErrInFlight
	}
	lines := w.cart.Lines()
	if len(lines) == 0 {
		w.mu.Unlock()
		return nil, ErrEmptyCart
	}
	if w.key == "" {
		w.key = uuid.NewString()
	}
	key := w.key
	w.state = StateProcessing
	w.mu.Unlock()

	created := make([]models.Order, 0, len(lines))

	for _, line := range lines {
		var price float64
		if line.Product != nil {
			price = line.Product.Price
		}
		order := &models.Order{
			UserID:     line.UserID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			TotalPrice: price * float64(line.Quantity),
			Status:     models.OrderStatusPending,
			OrderDate:  w.now(),
		}

		placed, err := w.backend.CreateOrder(ctx, order, fmt.Sprintf("%s-%d", key, line.ID))
		if err != nil {
			w.setState(StateFailed)
			if len(created) > 0 {
				return created, fmt.Errorf("%w: %d of %d orders created: %v", ErrPartialCheckout, len(created), len(lines), err)
			}
			return nil, fmt.Errorf("create order: %w", err)
		}
		created = append(created, *placed)
	}

	if err := w.cart.Clear(ctx); err != nil {
		w.setState(StateFailed)
		return created, fmt.Errorf("%w: all %d orders created but cart not cleared: %v", ErrPartialCheckout, len(created), err)
	}

	w.mu.Lock()
	w.state = StateDone
	w.key = ""
	w.mu.Unlock()

	event := map[string]any{
		"type":   "checkout_completed",
		"userID": lines[0].UserID,
		"orders": len(created),
	}
	if err := w.events.Publish(ctx, events.TopicOrderEvents, fmt.Sprint(lines[0].UserID), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}

	return created, nil
}

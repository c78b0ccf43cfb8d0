package models

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	OrderStatusPending = "Pending"
)

// User is the identity snapshot returned by the backend on login and
// re-validation. The JSON shape follows the backend contract, not ours.
type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the single durable row holding what a browser would keep in
// localStorage: the bearer token, the user id and a serialized user snapshot.
type Session struct {
	ID       uint   `gorm:"primaryKey"     json:"id"`
	Token    string `gorm:"not null"       json:"token"`
	UserID   uint   `gorm:"index;not null" json:"user_id"`
	UserJSON string `gorm:"not null"       json:"user_json"`
}

func (Session) TableName() string {
	return "sessions"
}

type Product struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

type Category struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// CartLine mirrors one server-side cart row. Product is the joined snapshot
// and may be nil when the lookup failed; totals treat a missing snapshot as
// price zero.
type CartLine struct {
	ID        uint     `json:"id"`
	UserID    uint     `json:"userId"`
	ProductID uint     `json:"productId"`
	Quantity  uint     `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Order is created one-per-cart-line at checkout. TotalPrice is fixed at
// creation time and never re-derived.
type Order struct {
	ID         uint      `json:"id"`
	UserID     uint      `json:"userId"`
	ProductID  uint      `json:"productId"`
	Quantity   uint      `json:"quantity"`
	TotalPrice float64   `json:"totalPrice"`
	Status     string    `json:"status"`
	OrderDate  time.Time `json:"orderDate"`
}

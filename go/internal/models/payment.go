package models

import "time"

// Payment represents a verified payment record.
type Payment struct {
	ID          int64      `json:"id"`
	OrderID     string     `json:"order_id"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	PaymentType string     `json:"payment_type"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

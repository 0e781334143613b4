// Package model defines the catalog and order records served by the API.
package model

import "time"

// Product is a catalog entry. ID is a ULID string and doubles as the
// ordering key for pagination and export.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Stock       int64     `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductPatch is a sparse update: nil fields are left untouched.
// The SKU is immutable after creation and cannot be patched.
type ProductPatch struct {
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	Stock       *int64  `json:"stock,omitempty"`
}

// IsZero reports whether the patch carries no field changes.
func (p *ProductPatch) IsZero() bool {
	return p.Name == nil &&
		p.Description == nil &&
		p.Category == nil &&
		p.PriceCents == nil &&
		p.Currency == nil &&
		p.Stock == nil
}

// Apply copies the patch's present fields onto prod.
func (p *ProductPatch) Apply(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.PriceCents != nil {
		prod.PriceCents = *p.PriceCents
	}
	if p.Currency != nil {
		prod.Currency = *p.Currency
	}
	if p.Stock != nil {
		prod.Stock = *p.Stock
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order is a placed order. ID is a ULID string, the ordering key for
// pagination and export. Reference is the human-facing unique order number.
type Order struct {
	ID            string      `json:"id"`
	Reference     string      `json:"reference"`
	CustomerEmail string      `json:"customer_email"`
	Status        OrderStatus `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Currency      string      `json:"currency"`
	PlacedAt      time.Time   `json:"placed_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderPatch is a sparse update: nil fields are left untouched.
type OrderPatch struct {
	ID            string       `json:"id"`
	Status        *OrderStatus `json:"status,omitempty"`
	CustomerEmail *string      `json:"customer_email,omitempty"`
}

// IsZero reports whether the patch carries no field changes.
func (p *OrderPatch) IsZero() bool {
	return p.Status == nil && p.CustomerEmail == nil
}

// Apply copies the patch's present fields onto ord.
func (p *OrderPatch) Apply(ord *Order) {
	if p.Status != nil {
		ord.Status = *p.Status
	}
	if p.CustomerEmail != nil {
		ord.CustomerEmail = *p.CustomerEmail
	}
}

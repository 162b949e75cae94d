// Package cart holds the sale in progress: an ordered list of product and
// bundle lines, a discount and an optional customer.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"go-pos-ws/internal/model"
)

var (
	ErrOutOfStock           = errors.New("product is out of stock")
	ErrInsufficientQuantity = errors.New("requested quantity is not available")
	ErrLineNotFound         = errors.New("cart line not found")
)

// BundleUnavailableError names the first bundle item whose stock is too low.
type BundleUnavailableError struct {
	Bundle  string
	Product string
	Needed  int
	InStock int
}

func (e *BundleUnavailableError) Error() string {
	return fmt.Sprintf("product '%s' is not available in the quantity bundle '%s' needs (%d needed, %d in stock)",
		e.Product, e.Bundle, e.Needed, e.InStock)
}

type Kind string

const (
	KindProduct Kind = "product"
	KindBundle  Kind = "bundle"
)

type Line struct {
	Kind      Kind            `json:"kind"`
	Product   *model.Product  `json:"product,omitempty"`
	Bundle    *model.Bundle   `json:"bundle,omitempty"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

func ProductLine(p model.Product, qty int) Line {
	l := Line{Kind: KindProduct, Product: &p, Quantity: qty}
	l.recompute()
	return l
}

func BundleLine(b model.Bundle, qty int) Line {
	l := Line{Kind: KindBundle, Bundle: &b, Quantity: qty}
	l.recompute()
	return l
}

func (l Line) UnitPrice() decimal.Decimal {
	if l.Kind == KindBundle {
		return l.Bundle.Price
	}
	return l.Product.SellingPrice
}

func (l *Line) recompute() {
	l.LineTotal = l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type EventKind string

const (
	// Mutated follows add, update and remove.
	Mutated EventKind = "mutated"
	// Cleared follows Clear and Reset; the stored snapshot must be erased.
	Cleared EventKind = "cleared"
	// Restored follows Replace.
	Restored EventKind = "restored"
	// Adjusted follows discount or customer changes, which are not persisted.
	Adjusted EventKind = "adjusted"
)

type Listener func(kind EventKind, c *Cart)

type Cart struct {
	lines      []Line
	discount   decimal.Decimal
	customerID *int64
	listeners  []Listener
}

func New() *Cart {
	return &Cart{}
}

// Subscribe registers l for every successful mutation.
func (c *Cart) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *Cart) emit(kind EventKind) {
	for _, l := range c.listeners {
		l(kind, c)
	}
}

// AddProduct adds one unit of p, checked against p's stock as passed in.
func (c *Cart) AddProduct(p model.Product) error {
	if p.CurrentStock <= 0 {
		return ErrOutOfStock
	}

	for i := range c.lines {
		line := &c.lines[i]
		if line.Kind != KindProduct || line.Product.ID != p.ID {
			continue
		}
		if line.Quantity >= p.CurrentStock {
			return ErrInsufficientQuantity
		}
		product := p
		line.Product = &product
		line.Quantity++
		line.recompute()
		c.emit(Mutated)
		return nil
	}

	c.lines = append(c.lines, ProductLine(p, 1))
	c.emit(Mutated)
	return nil
}

// AddBundle appends a new bundle line, or nothing if any item is short.
func (c *Cart) AddBundle(b model.Bundle) error {
	if item, short := b.FirstShortItem(); short {
		return &BundleUnavailableError{
			Bundle:  b.Name,
			Product: item.Product.Name,
			Needed:  item.Quantity,
			InStock: item.Product.CurrentStock,
		}
	}
	c.lines = append(c.lines, BundleLine(b, 1))
	c.emit(Mutated)
	return nil
}

// UpdateQuantity changes the line at index by delta. Bundle lines ignore
// increments; any line reaching zero is removed.
func (c *Cart) UpdateQuantity(index, delta int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrLineNotFound
	}
	line := &c.lines[index]
	if delta == 0 || (line.Kind == KindBundle && delta > 0) {
		return nil
	}

	newQty := line.Quantity + delta
	if line.Kind == KindProduct && delta > 0 && newQty > line.Product.CurrentStock {
		return ErrInsufficientQuantity
	}
	if newQty <= 0 {
		return c.Remove(index)
	}
	line.Quantity = newQty
	line.recompute()
	c.emit(Mutated)
	return nil
}

func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	c.emit(Mutated)
	return nil
}

// Clear empties the lines. Discount and customer stay as they are.
func (c *Cart) Clear() {
	c.lines = nil
	c.emit(Cleared)
}

// Reset returns the cart to its initial state after a completed sale.
func (c *Cart) Reset() {
	c.lines = nil
	c.discount = decimal.Zero
	c.customerID = nil
	c.emit(Cleared)
}

// Replace swaps in restored lines in one step.
func (c *Cart) Replace(lines []Line) {
	c.lines = make([]Line, len(lines))
	for i, l := range lines {
		l.recompute()
		c.lines[i] = l
	}
	c.emit(Restored)
}

// SetDiscount stores d as given; callers clamp it to zero or more.
func (c *Cart) SetDiscount(d decimal.Decimal) {
	c.discount = d
	c.emit(Adjusted)
}

func (c *Cart) SelectCustomer(id *int64) {
	if id != nil {
		v := *id
		id = &v
	}
	c.customerID = id
	c.emit(Adjusted)
}

func (c *Cart) CustomerID() *int64 {
	if c.customerID == nil {
		return nil
	}
	v := *c.customerID
	return &v
}

func (c *Cart) Discount() decimal.Decimal { return c.discount }

func (c *Cart) Len() int { return len(c.lines) }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Lines returns a copy of the lines in insertion order, never nil.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Totals() Totals {
	subtotal := decimal.Zero
	for _, l := range c.lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	total := subtotal.Sub(c.discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{Subtotal: subtotal, Discount: c.discount, Total: total}
}

// ProductIDs lists the distinct products of non-bundle lines in cart order.
func (c *Cart) ProductIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, l := range c.lines {
		if l.Kind != KindProduct || seen[l.Product.ID] {
			continue
		}
		seen[l.Product.ID] = true
		ids = append(ids, l.Product.ID)
	}
	return ids
}

// Package checkout turns the cart into a sale request and applies the outcome.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go-pos-ws/internal/cart"
	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/model"
	"go-pos-ws/pkg/validator"
)

var (
	ErrEmptyCart  = errors.New("cart is empty")
	ErrInProgress = errors.New("a checkout is already in progress")
)

// SaleAPI submits completed sales.
type SaleAPI interface {
	SubmitSale(ctx context.Context, req model.SaleRequest) (*model.SaleRecord, error)
}

// Result is published once per submitted checkout.
type Result struct {
	Sale    *model.SaleRecord `json:"sale,omitempty"`
	Request model.SaleRequest `json:"request"`
	Err     error             `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

type Coordinator struct {
	api           SaleAPI
	d             loop.Dispatcher
	log           *zap.Logger
	paymentMethod string

	busy     bool
	lastSale *model.SaleRecord

	afterSale []func(*model.SaleRecord)
	results   []func(Result)
}

func NewCoordinator(api SaleAPI, d loop.Dispatcher, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{api: api, d: d, log: log.Named("checkout"), paymentMethod: model.PaymentCash}
}

// AfterSale registers fn to run once a sale succeeded and the cart was reset.
func (c *Coordinator) AfterSale(fn func(*model.SaleRecord)) {
	c.afterSale = append(c.afterSale, fn)
}

func (c *Coordinator) OnResult(fn func(Result)) {
	c.results = append(c.results, fn)
}

func (c *Coordinator) Busy() bool { return c.busy }

func (c *Coordinator) LastSale() *model.SaleRecord { return c.lastSale }

// BuildRequest maps the cart to a sale request. Each bundle line contributes
// its bundle id once per unit.
func BuildRequest(ct *cart.Cart, paymentMethod string) model.SaleRequest {
	req := model.SaleRequest{
		CustomerID:    ct.CustomerID(),
		Items:         []model.SaleItemRequest{},
		BundleIDs:     []int64{},
		Discount:      ct.Discount(),
		PaymentMethod: paymentMethod,
	}
	for _, l := range ct.Lines() {
		if l.Kind == cart.KindBundle {
			for i := 0; i < l.Quantity; i++ {
				req.BundleIDs = append(req.BundleIDs, l.Bundle.ID)
			}
			continue
		}
		req.Items = append(req.Items, model.SaleItemRequest{ProductID: l.Product.ID, Quantity: l.Quantity})
	}
	return req
}

// Checkout submits the cart once. The cart is not touched until the sale API
// answers, so a failure needs no rollback.
func (c *Coordinator) Checkout(ct *cart.Cart) error {
	if c.busy {
		return ErrInProgress
	}
	if ct.IsEmpty() {
		return ErrEmptyCart
	}

	req := BuildRequest(ct, c.paymentMethod)
	if err := validator.FirstError(&req); err != nil {
		return err
	}

	c.busy = true
	c.log.Info("submitting sale",
		zap.Int("items", len(req.Items)),
		zap.Int("bundles", len(req.BundleIDs)),
		zap.String("discount", req.Discount.String()))

	c.d.Go(func(ctx context.Context) func() {
		sale, err := c.api.SubmitSale(ctx, req)
		return func() {
			c.busy = false
			if err == nil && sale == nil {
				err = errors.New("sale API returned no sale")
			}
			if err != nil {
				c.log.Warn("sale submission failed", zap.Error(err))
				c.publish(Result{Request: req, Err: fmt.Errorf("submit sale: %w", err)})
				return
			}

			c.lastSale = sale
			ct.Reset()
			c.log.Info("sale completed", zap.Int64("sale_id", sale.ID), zap.String("total", sale.Total.String()))
			for _, fn := range c.afterSale {
				fn(sale)
			}
			c.publish(Result{Sale: sale, Request: req})
		}
	})
	return nil
}

func (c *Coordinator) publish(r Result) {
	for _, fn := range c.results {
		fn(r)
	}
}

// Package persistence keeps a minimal copy of the cart in a durable key-value
// store and rebuilds the cart from it against the live catalog.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"go-pos-ws/internal/cart"
	"go-pos-ws/internal/model"
)

const DefaultKey = "pos_cart"

// Store is a flat string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Catalog is the lookup side of the catalog cache.
type Catalog interface {
	ProductByID(id int64) (model.Product, bool)
	BundleByID(id int64) (model.Bundle, bool)
}

type Options struct {
	Key string
	// ClampToStock caps restored product quantities at live stock and drops
	// lines whose product is out of stock. When false, stored quantities are
	// restored as they were saved.
	ClampToStock bool
}

type RestoreReport struct {
	Stored   int `json:"stored"`
	Restored int `json:"restored"`
	Dropped  int `json:"dropped"`
	Clamped  int `json:"clamped"`
}

type Persistence struct {
	store Store
	opts  Options
	log   *zap.Logger
}

func New(store Store, opts Options, log *zap.Logger) *Persistence {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Persistence{store: store, opts: opts, log: log.Named("persistence")}
}

func (p *Persistence) Key() string { return p.opts.Key }

// Snapshot converts cart lines to their stored shape.
func Snapshot(lines []cart.Line) []model.StoredCartLine {
	out := make([]model.StoredCartLine, 0, len(lines))
	for _, l := range lines {
		stored := model.StoredCartLine{Quantity: l.Quantity}
		if l.Kind == cart.KindBundle {
			id := l.Bundle.ID
			stored.IsBundle = true
			stored.BundleID = &id
		} else {
			id := l.Product.ID
			stored.ProductID = &id
		}
		out = append(out, stored)
	}
	return out
}

func (p *Persistence) Save(ctx context.Context, c *cart.Cart) error {
	raw, err := json.Marshal(Snapshot(c.Lines()))
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := p.store.Set(ctx, p.opts.Key, string(raw)); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Erase removes the stored cart. An empty saved cart would otherwise look the
// same as a terminal that never saved one.
func (p *Persistence) Erase(ctx context.Context) error {
	if err := p.store.Remove(ctx, p.opts.Key); err != nil {
		return fmt.Errorf("erase cart: %w", err)
	}
	return nil
}

// Restore rebuilds c from the stored snapshot. It is meant to run once, after
// both catalog collections have loaded. Unresolvable lines are dropped.
func (p *Persistence) Restore(ctx context.Context, catalog Catalog, c *cart.Cart) (RestoreReport, error) {
	raw, ok, err := p.store.Get(ctx, p.opts.Key)
	if err != nil {
		return RestoreReport{}, fmt.Errorf("read cart: %w", err)
	}

	var stored []model.StoredCartLine
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			p.log.Warn("discarding unreadable stored cart", zap.String("key", p.opts.Key), zap.Error(err))
			if err := p.store.Remove(ctx, p.opts.Key); err != nil {
				p.log.Warn("failed to remove unreadable cart", zap.Error(err))
			}
			stored = nil
		}
	}

	lines, report := p.Reconcile(stored, catalog)
	c.Replace(lines)
	p.log.Info("cart restored",
		zap.Int("stored", report.Stored),
		zap.Int("restored", report.Restored),
		zap.Int("dropped", report.Dropped),
		zap.Int("clamped", report.Clamped))
	return report, nil
}

// Reconcile resolves stored lines against the current catalog snapshot.
func (p *Persistence) Reconcile(stored []model.StoredCartLine, catalog Catalog) ([]cart.Line, RestoreReport) {
	report := RestoreReport{Stored: len(stored)}
	lines := make([]cart.Line, 0, len(stored))

	for _, s := range stored {
		if s.Quantity <= 0 {
			report.Dropped++
			continue
		}

		if s.IsBundle {
			if s.BundleID == nil {
				report.Dropped++
				continue
			}
			b, ok := catalog.BundleByID(*s.BundleID)
			if !ok {
				report.Dropped++
				continue
			}
			lines = append(lines, cart.BundleLine(b, s.Quantity))
			continue
		}

		if s.ProductID == nil {
			report.Dropped++
			continue
		}
		prod, ok := catalog.ProductByID(*s.ProductID)
		if !ok {
			report.Dropped++
			continue
		}
		qty := s.Quantity
		if p.opts.ClampToStock {
			if prod.CurrentStock <= 0 {
				report.Dropped++
				continue
			}
			if qty > prod.CurrentStock {
				qty = prod.CurrentStock
				report.Clamped++
			}
		}
		lines = append(lines, cart.ProductLine(prod, qty))
	}

	report.Restored = len(lines)
	return lines, report
}

// Package catalog caches the product and bundle snapshots the terminal sells
// from. The two collections load independently and may arrive in any order.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/model"
)

const (
	SourceProducts = "products"
	SourceBundles  = "bundles"
)

// Source is the catalog service.
type Source interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListActiveBundles(ctx context.Context) ([]model.Bundle, error)
}

type Cache struct {
	source Source
	d      loop.Dispatcher
	log    *zap.Logger

	products   []model.Product
	productIdx map[int64]int
	barcodeIdx map[string]int
	bundles    []model.Bundle
	bundleIdx  map[int64]int

	ready   *Barrier
	loading map[string]bool
	// again marks sources asked to load while a load was in flight.
	again map[string]bool

	loadedHooks []func(source string)
	errorHooks  []func(source string, err error)
}

func New(source Source, d loop.Dispatcher, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		source:     source,
		d:          d,
		log:        log.Named("catalog"),
		productIdx: map[int64]int{},
		barcodeIdx: map[string]int{},
		bundleIdx:  map[int64]int{},
		ready:      NewBarrier(SourceProducts, SourceBundles),
		loading:    map[string]bool{},
		again:      map[string]bool{},
	}
}

// LoadProducts fetches the product list in the background. A failed load
// leaves the products flag untouched; retrying is up to the caller.
func (c *Cache) LoadProducts() {
	c.load(SourceProducts, func(ctx context.Context) (func(), error) {
		products, err := c.source.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return func() { c.setProducts(products) }, nil
	})
}

func (c *Cache) LoadBundles() {
	c.load(SourceBundles, func(ctx context.Context) (func(), error) {
		bundles, err := c.source.ListActiveBundles(ctx)
		if err != nil {
			return nil, err
		}
		return func() { c.setBundles(bundles) }, nil
	})
}

// Reload refreshes both collections. A load already in flight may predate
// the caller's change, so it is followed by a fresh one. Reload never re-runs
// OnBothReady callbacks.
func (c *Cache) Reload() {
	c.LoadProducts()
	c.LoadBundles()
}

func (c *Cache) load(source string, fetch func(ctx context.Context) (func(), error)) {
	if c.loading[source] {
		c.log.Debug("load already in flight, queueing another", zap.String("source", source))
		c.again[source] = true
		return
	}
	c.loading[source] = true

	c.d.Go(func(ctx context.Context) func() {
		apply, err := fetch(ctx)
		return func() {
			c.loading[source] = false
			defer func() {
				if c.again[source] {
					c.again[source] = false
					c.load(source, fetch)
				}
			}()
			if err != nil {
				c.log.Warn("catalog load failed", zap.String("source", source), zap.Error(err))
				wrapped := fmt.Errorf("load %s: %w", source, err)
				for _, hook := range c.errorHooks {
					hook(source, wrapped)
				}
				return
			}
			apply()
			for _, hook := range c.loadedHooks {
				hook(source)
			}
			c.ready.Arrive(source)
		}
	})
}

func (c *Cache) setProducts(products []model.Product) {
	c.products = products
	c.productIdx = make(map[int64]int, len(products))
	c.barcodeIdx = make(map[string]int, len(products))
	for i, p := range products {
		if _, dup := c.productIdx[p.ID]; !dup {
			c.productIdx[p.ID] = i
		}
		code := strings.TrimSpace(p.Barcode)
		if code == "" {
			continue
		}
		// Barcodes are not unique; the first product wins.
		if _, dup := c.barcodeIdx[code]; !dup {
			c.barcodeIdx[code] = i
		}
	}
	c.log.Info("products loaded", zap.Int("count", len(products)))
}

func (c *Cache) setBundles(bundles []model.Bundle) {
	active := make([]model.Bundle, 0, len(bundles))
	for _, b := range bundles {
		if b.Active {
			active = append(active, b)
		}
	}
	c.bundles = active
	c.bundleIdx = make(map[int64]int, len(active))
	for i, b := range active {
		if _, dup := c.bundleIdx[b.ID]; !dup {
			c.bundleIdx[b.ID] = i
		}
	}
	c.log.Info("bundles loaded", zap.Int("count", len(active)))
}

// OnBothReady runs fn the first time products and bundles have both loaded.
func (c *Cache) OnBothReady(fn func()) {
	c.ready.OnComplete(fn)
}

func (c *Cache) OnLoaded(fn func(source string)) {
	c.loadedHooks = append(c.loadedHooks, fn)
}

func (c *Cache) OnLoadError(fn func(source string, err error)) {
	c.errorHooks = append(c.errorHooks, fn)
}

func (c *Cache) ProductsLoaded() bool { return c.ready.Arrived(SourceProducts) }
func (c *Cache) BundlesLoaded() bool  { return c.ready.Arrived(SourceBundles) }

func (c *Cache) ProductByID(id int64) (model.Product, bool) {
	i, ok := c.productIdx[id]
	if !ok {
		return model.Product{}, false
	}
	return c.products[i], true
}

func (c *Cache) ProductByBarcode(code string) (model.Product, bool) {
	i, ok := c.barcodeIdx[strings.TrimSpace(code)]
	if !ok {
		return model.Product{}, false
	}
	return c.products[i], true
}

func (c *Cache) BundleByID(id int64) (model.Bundle, bool) {
	i, ok := c.bundleIdx[id]
	if !ok {
		return model.Bundle{}, false
	}
	return c.bundles[i], true
}

func (c *Cache) Products() []model.Product {
	return append([]model.Product(nil), c.products...)
}

func (c *Cache) Bundles() []model.Bundle {
	return append([]model.Bundle(nil), c.bundles...)
}

// Categories lists the distinct non-empty product categories in first-seen order.
func (c *Cache) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range c.products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

// Search matches term against product names (case-insensitive) and barcodes,
// optionally restricted to one category.
func (c *Cache) Search(term, category string) []model.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []model.Product
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		if term == "" ||
			strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Barcode), term) {
			out = append(out, p)
		}
	}
	return out
}

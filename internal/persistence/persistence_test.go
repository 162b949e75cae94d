package persistence_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/shopspring/decimal"

	"go-pos-ws/internal/cart"
	"go-pos-ws/internal/model"
	"go-pos-ws/internal/persistence"
	"go-pos-ws/internal/repository"
)

type fakeCatalog struct {
	products map[int64]model.Product
	bundles  map[int64]model.Bundle
}

func (f fakeCatalog) ProductByID(id int64) (model.Product, bool) {
	p, ok := f.products[id]
	return p, ok
}

func (f fakeCatalog) BundleByID(id int64) (model.Bundle, bool) {
	b, ok := f.bundles[id]
	return b, ok
}

var (
	productA = model.Product{ID: 1, Name: "Coffee 250g", SellingPrice: decimal.NewFromInt(85), CurrentStock: 10}
	productC = model.Product{ID: 3, Name: "Dates 1kg", SellingPrice: decimal.RequireFromString("42.75"), CurrentStock: 6}
	bundleB  = model.Bundle{ID: 2, Name: "Coffee Break", Price: decimal.NewFromInt(120), Active: true,
		Items: []model.BundleItem{{Product: productA, Quantity: 1}, {Product: productC, Quantity: 1}}}
)

func catalogOf(products []model.Product, bundles []model.Bundle) fakeCatalog {
	f := fakeCatalog{products: map[int64]model.Product{}, bundles: map[int64]model.Bundle{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	for _, b := range bundles {
		f.bundles[b.ID] = b
	}
	return f
}

func TestSaveStoresIdentityAndQuantityOnly(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := persistence.New(store, persistence.Options{}, nil)

	ct := cart.New()
	c.Assert(ct.AddProduct(productA), qt.IsNil)
	c.Assert(ct.AddProduct(productA), qt.IsNil)
	c.Assert(ct.AddBundle(bundleB), qt.IsNil)
	c.Assert(p.Save(ctx, ct), qt.IsNil)

	raw, ok, _ := store.Get(ctx, persistence.DefaultKey)
	c.Assert(ok, qt.IsTrue)
	c.Assert(raw, qt.JSONEquals, []map[string]interface{}{
		{"isBundle": false, "quantity": 2, "productId": 1},
		{"isBundle": true, "quantity": 1, "bundleId": 2},
	})
}

func TestRoundTripAgainstUnchangedCatalog(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := persistence.New(store, persistence.Options{ClampToStock: true}, nil)

	original := cart.New()
	c.Assert(original.AddProduct(productA), qt.IsNil)
	c.Assert(original.AddProduct(productA), qt.IsNil)
	c.Assert(original.AddBundle(bundleB), qt.IsNil)
	c.Assert(p.Save(ctx, original), qt.IsNil)

	restored := cart.New()
	var events []cart.EventKind
	restored.Subscribe(func(kind cart.EventKind, _ *cart.Cart) { events = append(events, kind) })

	report, err := p.Restore(ctx, catalogOf([]model.Product{productA, productC}, []model.Bundle{bundleB}), restored)
	c.Assert(err, qt.IsNil)
	c.Assert(report, qt.DeepEquals, persistence.RestoreReport{Stored: 2, Restored: 2})
	c.Assert(restored.Lines(), qt.DeepEquals, original.Lines())
	c.Assert(restored.Totals(), qt.DeepEquals, original.Totals())
	c.Assert(events, qt.DeepEquals, []cart.EventKind{cart.Restored})
}

func TestStaleReferencesAreDropped(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c.Assert(store.Set(ctx, persistence.DefaultKey, `[{"isBundle":true,"quantity":1,"bundleId":99}]`), qt.IsNil)
	p := persistence.New(store, persistence.Options{ClampToStock: true}, nil)

	ct := cart.New()
	report, err := p.Restore(ctx, catalogOf([]model.Product{productA}, nil), ct)
	c.Assert(err, qt.IsNil)
	c.Assert(ct.IsEmpty(), qt.IsTrue)
	c.Assert(report.Dropped, qt.Equals, 1)
}

func TestStaleLineDropLeavesTheRest(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c.Assert(store.Set(ctx, persistence.DefaultKey, `[
		{"isBundle":false,"quantity":1,"productId":404},
		{"isBundle":true,"quantity":1,"bundleId":99},
		{"isBundle":false,"quantity":2,"productId":3},
		{"isBundle":false,"quantity":0,"productId":1},
		{"isBundle":true,"quantity":1}
	]`), qt.IsNil)
	p := persistence.New(store, persistence.Options{ClampToStock: true}, nil)

	ct := cart.New()
	report, err := p.Restore(ctx, catalogOf([]model.Product{productA, productC}, []model.Bundle{bundleB}), ct)
	c.Assert(err, qt.IsNil)
	c.Assert(report, qt.DeepEquals, persistence.RestoreReport{Stored: 5, Restored: 1, Dropped: 4})
	c.Assert(ct.Lines(), qt.HasLen, 1)
	c.Assert(ct.Lines()[0].Product.ID, qt.Equals, int64(3))
	c.Assert(ct.Totals().Subtotal.String(), qt.Equals, "85.5")
}

// Restoring reprices from the live catalog rather than the saved cart.
func TestRestoreUsesLivePrices(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := persistence.New(store, persistence.Options{ClampToStock: true}, nil)

	ct := cart.New()
	c.Assert(ct.AddProduct(productA), qt.IsNil)
	c.Assert(p.Save(ctx, ct), qt.IsNil)

	repriced := productA
	repriced.SellingPrice = decimal.NewFromInt(90)
	restored := cart.New()
	_, err := p.Restore(ctx, catalogOf([]model.Product{repriced}, nil), restored)
	c.Assert(err, qt.IsNil)
	c.Assert(restored.Lines()[0].LineTotal.String(), qt.Equals, "90")
}

func TestRestoreClampsToLiveStock(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c.Assert(store.Set(ctx, persistence.DefaultKey, `[
		{"isBundle":false,"quantity":8,"productId":1},
		{"isBundle":false,"quantity":2,"productId":3}
	]`), qt.IsNil)

	lowA := productA
	lowA.CurrentStock = 1
	soldOutC := productC
	soldOutC.CurrentStock = 0
	live := catalogOf([]model.Product{lowA, soldOutC}, nil)

	clamped := cart.New()
	report, err := persistence.New(store, persistence.Options{ClampToStock: true}, nil).Restore(ctx, live, clamped)
	c.Assert(err, qt.IsNil)
	c.Assert(report, qt.DeepEquals, persistence.RestoreReport{Stored: 2, Restored: 1, Dropped: 1, Clamped: 1})
	c.Assert(clamped.Lines(), qt.HasLen, 1)
	c.Assert(clamped.Lines()[0].Quantity, qt.Equals, 1)
}

// With clamping off, stored quantities come back uncapped even when they now
// exceed live stock.
func TestRestoreWithoutClampKeepsStoredQuantity(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c.Assert(store.Set(ctx, persistence.DefaultKey, `[
		{"isBundle":false,"quantity":8,"productId":1},
		{"isBundle":false,"quantity":2,"productId":3}
	]`), qt.IsNil)

	lowA := productA
	lowA.CurrentStock = 1
	soldOutC := productC
	soldOutC.CurrentStock = 0

	ct := cart.New()
	report, err := persistence.New(store, persistence.Options{ClampToStock: false}, nil).
		Restore(ctx, catalogOf([]model.Product{lowA, soldOutC}, nil), ct)
	c.Assert(err, qt.IsNil)
	c.Assert(report.Clamped, qt.Equals, 0)
	c.Assert(ct.Lines(), qt.HasLen, 2)
	c.Assert(ct.Lines()[0].Quantity, qt.Equals, 8)
	c.Assert(ct.Lines()[1].Quantity, qt.Equals, 2)
}

func TestCorruptSnapshotIsDiscarded(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c.Assert(store.Set(ctx, "terminal-2", `{not json`), qt.IsNil)
	p := persistence.New(store, persistence.Options{Key: "terminal-2"}, nil)

	ct := cart.New()
	report, err := p.Restore(ctx, catalogOf(nil, nil), ct)
	c.Assert(err, qt.IsNil)
	c.Assert(report.Stored, qt.Equals, 0)
	c.Assert(ct.IsEmpty(), qt.IsTrue)
	_, ok, _ := store.Get(ctx, "terminal-2")
	c.Assert(ok, qt.IsFalse)
}

func TestEraseRemovesKey(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := persistence.New(store, persistence.Options{}, nil)

	ct := cart.New()
	c.Assert(p.Save(ctx, ct), qt.IsNil)
	raw, ok, _ := store.Get(ctx, p.Key())
	c.Assert(ok, qt.IsTrue)
	c.Assert(raw, qt.Equals, "[]")

	c.Assert(p.Erase(ctx), qt.IsNil)
	_, ok, _ = store.Get(ctx, p.Key())
	c.Assert(ok, qt.IsFalse)
}

type failingStore struct{ *repository.MemoryStore }

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("disk unavailable")
}

func TestRestoreReadFailure(t *testing.T) {
	c := qt.New(t)
	p := persistence.New(&failingStore{repository.NewMemoryStore()}, persistence.Options{}, nil)
	ct := cart.New()
	c.Assert(ct.AddProduct(productA), qt.IsNil)

	_, err := p.Restore(context.Background(), catalogOf(nil, nil), ct)
	c.Assert(err, qt.ErrorMatches, "read cart: disk unavailable")
	c.Assert(ct.Lines(), qt.HasLen, 1)
}

func TestSnapshotShape(t *testing.T) {
	c := qt.New(t)
	lines := []cart.Line{cart.ProductLine(productC, 4), cart.BundleLine(bundleB, 1)}
	raw, err := json.Marshal(persistence.Snapshot(lines))
	c.Assert(err, qt.IsNil)
	c.Assert(string(raw), qt.Equals, `[{"isBundle":false,"quantity":4,"productId":3},{"isBundle":true,"quantity":1,"bundleId":2}]`)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go-pos-ws/internal/cart"
	"go-pos-ws/internal/catalog"
	"go-pos-ws/internal/checkout"
	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/model"
	"go-pos-ws/internal/notify"
	"go-pos-ws/internal/persistence"
	"go-pos-ws/internal/recommendation"
	"go-pos-ws/internal/scanner"

	"github.com/juju/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Error definitions
var (
	ErrProductNotFound = errors.New("product not found")
	ErrBundleNotFound  = errors.New("bundle not found")
	ErrUnknownBarcode  = errors.New("unknown product")
	ErrEmptyBarcode    = errors.New("barcode is empty")
	ErrCatalogNotReady = errors.New("catalog has not loaded yet")
)

type PosService interface {
	Start(ctx context.Context) error
	HandleKey(ctx context.Context, ev scanner.KeyEvent) (scanner.Result, error)
	Scan(ctx context.Context, barcode string) (*model.Product, error)
	AddProduct(ctx context.Context, productID int64) error
	AddBundle(ctx context.Context, bundleID int64) error
	UpdateQuantity(ctx context.Context, index, delta int) error
	RemoveLine(ctx context.Context, index int) error
	ClearCart(ctx context.Context) error
	SetDiscount(ctx context.Context, discount decimal.Decimal) error
	SelectCustomer(ctx context.Context, customerID *int64) error
	Checkout(ctx context.Context) error
	AddSuggestion(ctx context.Context, productID int64) error
	Search(ctx context.Context, term, category string) (*SearchResult, error)
	Categories(ctx context.Context) ([]string, error)
	Bundles(ctx context.Context) ([]model.Bundle, error)
	Suggestions(ctx context.Context) ([]model.Suggestion, error)
	LastSale(ctx context.Context) (*model.SaleRecord, error)
	Cart(ctx context.Context) (*CartView, error)
	ReloadCatalog(ctx context.Context) error

	OnCartChanged(fn func(CartView))
	OnSuggestionsChanged(fn func([]model.Suggestion))
	OnCheckoutResult(fn func(checkout.Result))
}

// CartView is what the UI renders for the sale in progress.
type CartView struct {
	Lines          []cart.Line     `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	CustomerID     *int64          `json:"customerId,omitempty"`
	CheckoutBusy   bool            `json:"checkoutBusy"`
	ProductsLoaded bool            `json:"productsLoaded"`
	BundlesLoaded  bool            `json:"bundlesLoaded"`
}

type SearchResult struct {
	Products []model.Product `json:"products"`
	// Added is set when the term was a barcode and the product went straight
	// into the cart.
	Added *model.Product `json:"added,omitempty"`
}

type Deps struct {
	Runner          loop.Runner
	Catalog         catalog.Source
	Sales           checkout.SaleAPI
	Recommendations recommendation.API
	Store           persistence.Store
	Sink            notify.Sink
	Clock           clock.Clock
	Logger          *zap.Logger

	SessionID    string
	Persistence  persistence.Options
	Classifier   scanner.Classifier
	StoreTimeout time.Duration
}

type posService struct {
	runner  loop.Runner
	clock   clock.Clock
	sink    notify.Sink
	log     *zap.Logger
	timeout time.Duration

	catalog    *catalog.Cache
	cart       *cart.Cart
	persist    *persistence.Persistence
	recs       *recommendation.Fetcher
	checkout   *checkout.Coordinator
	classifier scanner.Classifier
	scan       scanner.State

	started       bool
	restored      bool
	cartListeners []func(CartView)
	sugListeners  []func([]model.Suggestion)
	outListeners  []func(checkout.Result)
}

func NewPosService(d Deps) PosService {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if d.SessionID != "" {
		log = log.With(zap.String("session_id", d.SessionID))
	}
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Sink == nil {
		d.Sink = notify.NewSink(nil, log)
	}
	if d.Classifier.Gap <= 0 || d.Classifier.MinLength <= 0 {
		d.Classifier = scanner.Default()
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 5 * time.Second
	}

	s := &posService{
		runner:     d.Runner,
		clock:      d.Clock,
		sink:       d.Sink,
		log:        log,
		timeout:    d.StoreTimeout,
		catalog:    catalog.New(d.Catalog, d.Runner, log),
		cart:       cart.New(),
		persist:    persistence.New(d.Store, d.Persistence, log),
		recs:       recommendation.NewFetcher(d.Recommendations, d.Runner, log),
		checkout:   checkout.NewCoordinator(d.Sales, d.Runner, log),
		classifier: d.Classifier,
	}
	s.wire()
	return s
}

func (s *posService) wire() {
	s.cart.Subscribe(func(kind cart.EventKind, c *cart.Cart) {
		switch kind {
		case cart.Mutated:
			s.save()
			s.recs.Refresh(c.ProductIDs())
		case cart.Cleared:
			s.erase()
			s.recs.Refresh(nil)
		case cart.Restored:
			s.recs.Refresh(c.ProductIDs())
		}
		view := s.view()
		for _, fn := range s.cartListeners {
			fn(view)
		}
	})

	s.recs.OnChanged(func(suggestions []model.Suggestion) {
		for _, fn := range s.sugListeners {
			fn(suggestions)
		}
	})
	s.recs.OnError(func(err error) {
		notify.Warnf(s.sink, "could not load suggestions")
	})

	s.catalog.OnLoadError(func(source string, err error) {
		notify.Errorf(s.sink, "failed to load %s", source)
	})

	s.checkout.AfterSale(func(*model.SaleRecord) {
		// Stock changed on the server. The ready barrier already fired, so
		// this does not restore anything.
		s.catalog.Reload()
	})
	s.checkout.OnResult(func(r checkout.Result) {
		if r.OK() {
			notify.Successf(s.sink, "sale completed, invoice #%d", r.Sale.ID)
		} else {
			notify.Errorf(s.sink, "failed to complete the sale")
		}
		for _, fn := range s.outListeners {
			fn(r)
		}
		// The busy flag changed.
		view := s.view()
		for _, fn := range s.cartListeners {
			fn(view)
		}
	})
}

func (s *posService) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *posService) save() {
	ctx, cancel := s.storeCtx()
	defer cancel()
	if err := s.persist.Save(ctx, s.cart); err != nil {
		s.log.Warn("failed to persist cart", zap.Error(err))
	}
}

func (s *posService) erase() {
	ctx, cancel := s.storeCtx()
	defer cancel()
	if err := s.persist.Erase(ctx); err != nil {
		s.log.Warn("failed to erase persisted cart", zap.Error(err))
	}
}

func (s *posService) restore() {
	s.restored = true
	ctx, cancel := s.storeCtx()
	defer cancel()
	report, err := s.persist.Restore(ctx, s.catalog, s.cart)
	if err != nil {
		s.log.Warn("failed to restore cart", zap.Error(err))
		return
	}
	if report.Dropped > 0 || report.Clamped > 0 {
		notify.Infof(s.sink, "restored cart changed: %d line(s) removed, %d line(s) reduced to stock", report.Dropped, report.Clamped)
	}
}

func (s *posService) view() CartView {
	totals := s.cart.Totals()
	return CartView{
		Lines:          s.cart.Lines(),
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		Total:          totals.Total,
		CustomerID:     s.cart.CustomerID(),
		CheckoutBusy:   s.checkout.Busy(),
		ProductsLoaded: s.catalog.ProductsLoaded(),
		BundlesLoaded:  s.catalog.BundlesLoaded(),
	}
}

// cartLocked refuses edits until the stored cart has been restored and while
// a sale is being submitted.
func (s *posService) cartLocked() error {
	switch {
	case !s.restored:
		notify.Warnf(s.sink, "catalog is still loading")
		return ErrCatalogNotReady
	case s.checkout.Busy():
		notify.Warnf(s.sink, "sale in progress, wait for it to finish")
		return checkout.ErrInProgress
	}
	return nil
}

// do runs fn on the loop and returns the error fn reported.
func (s *posService) do(ctx context.Context, fn func() error) error {
	var err error
	if runErr := s.runner.Do(ctx, func() { err = fn() }); runErr != nil {
		return runErr
	}
	return err
}

func (s *posService) Start(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.started {
			return nil
		}
		s.started = true
		s.catalog.OnBothReady(s.restore)
		s.catalog.LoadProducts()
		s.catalog.LoadBundles()
		s.log.Info("POS session started")
		return nil
	})
}

func (s *posService) ReloadCatalog(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.catalog.Reload()
		return nil
	})
}

func (s *posService) HandleKey(ctx context.Context, ev scanner.KeyEvent) (scanner.Result, error) {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	var res scanner.Result
	err := s.do(ctx, func() error {
		s.scan, res = s.classifier.Classify(s.scan, ev)
		switch res.Kind {
		case scanner.ScannerTerminate:
			s.log.Debug("scanner burst", zap.String("code", res.Code))
			s.scanBarcode(res.Code)
		case scanner.HumanEnterShortcut:
			s.runCheckout()
		}
		return nil
	})
	return res, err
}

func (s *posService) Scan(ctx context.Context, barcode string) (*model.Product, error) {
	var added *model.Product
	err := s.do(ctx, func() error {
		p, err := s.scanBarcode(barcode)
		added = p
		return err
	})
	return added, err
}

func (s *posService) scanBarcode(code string) (*model.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		notify.Warnf(s.sink, "barcode is empty")
		return nil, ErrEmptyBarcode
	}
	if err := s.cartLocked(); err != nil {
		return nil, err
	}
	p, ok := s.catalog.ProductByBarcode(code)
	if !ok {
		notify.Warnf(s.sink, "unknown product: %s", code)
		return nil, fmt.Errorf("%w: %s", ErrUnknownBarcode, code)
	}
	if err := s.addProduct(p); err != nil {
		return nil, err
	}
	notify.Successf(s.sink, "added: %s", p.Name)
	return &p, nil
}

func (s *posService) addProduct(p model.Product) error {
	err := s.cart.AddProduct(p)
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		notify.Warnf(s.sink, "%s is out of stock", p.Name)
	case errors.Is(err, cart.ErrInsufficientQuantity):
		notify.Warnf(s.sink, "requested quantity of %s is not available", p.Name)
	}
	return err
}

func (s *posService) AddProduct(ctx context.Context, productID int64) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		p, ok := s.catalog.ProductByID(productID)
		if !ok {
			notify.Warnf(s.sink, "product #%d not found", productID)
			return ErrProductNotFound
		}
		return s.addProduct(p)
	})
}

func (s *posService) AddBundle(ctx context.Context, bundleID int64) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		b, ok := s.catalog.BundleByID(bundleID)
		if !ok {
			notify.Warnf(s.sink, "bundle #%d not found", bundleID)
			return ErrBundleNotFound
		}
		if err := s.cart.AddBundle(b); err != nil {
			notify.Warnf(s.sink, "%s", err.Error())
			return err
		}
		return nil
	})
}

func (s *posService) UpdateQuantity(ctx context.Context, index, delta int) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		err := s.cart.UpdateQuantity(index, delta)
		if errors.Is(err, cart.ErrInsufficientQuantity) {
			notify.Warnf(s.sink, "requested quantity is not available")
		}
		return err
	})
}

func (s *posService) RemoveLine(ctx context.Context, index int) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		return s.cart.Remove(index)
	})
}

func (s *posService) ClearCart(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		s.cart.Clear()
		notify.Infof(s.sink, "cart cleared")
		return nil
	})
}

// SetDiscount clamps negative discounts to zero.
func (s *posService) SetDiscount(ctx context.Context, discount decimal.Decimal) error {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		s.cart.SetDiscount(discount)
		return nil
	})
}

func (s *posService) SelectCustomer(ctx context.Context, customerID *int64) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		s.cart.SelectCustomer(customerID)
		return nil
	})
}

func (s *posService) Checkout(ctx context.Context) error {
	return s.do(ctx, s.runCheckout)
}

func (s *posService) runCheckout() error {
	err := s.checkout.Checkout(s.cart)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		notify.Warnf(s.sink, "cart is empty")
	case errors.Is(err, checkout.ErrInProgress):
		s.log.Debug("checkout already in flight")
	case err != nil:
		notify.Warnf(s.sink, "%s", err.Error())
	default:
		view := s.view()
		for _, fn := range s.cartListeners {
			fn(view)
		}
	}
	return err
}

func (s *posService) AddSuggestion(ctx context.Context, productID int64) error {
	return s.do(ctx, func() error {
		if err := s.cartLocked(); err != nil {
			return err
		}
		p, ok := s.catalog.ProductByID(productID)
		if !ok {
			notify.Warnf(s.sink, "product #%d not found", productID)
			return ErrProductNotFound
		}
		return s.addProduct(p)
	})
}

// Search filters the product grid. A term longer than three characters that
// matches a barcode exactly is treated as a typed scan.
func (s *posService) Search(ctx context.Context, term, category string) (*SearchResult, error) {
	var result *SearchResult
	err := s.do(ctx, func() error {
		if !s.catalog.ProductsLoaded() {
			return ErrCatalogNotReady
		}
		code := strings.TrimSpace(term)
		if utf8.RuneCountInString(code) > s.classifier.MinLength {
			if p, ok := s.catalog.ProductByBarcode(code); ok {
				if err := s.cartLocked(); err != nil {
					return err
				}
				if err := s.addProduct(p); err != nil {
					return err
				}
				result = &SearchResult{Products: s.catalog.Search("", category), Added: &p}
				return nil
			}
		}
		result = &SearchResult{Products: s.catalog.Search(term, category)}
		return nil
	})
	return result, err
}

func (s *posService) Categories(ctx context.Context) ([]string, error) {
	var out []string
	err := s.do(ctx, func() error {
		out = s.catalog.Categories()
		return nil
	})
	return out, err
}

func (s *posService) Bundles(ctx context.Context) ([]model.Bundle, error) {
	var out []model.Bundle
	err := s.do(ctx, func() error {
		out = s.catalog.Bundles()
		return nil
	})
	return out, err
}

func (s *posService) Suggestions(ctx context.Context) ([]model.Suggestion, error) {
	var out []model.Suggestion
	err := s.do(ctx, func() error {
		out = s.recs.Suggestions()
		return nil
	})
	return out, err
}

func (s *posService) LastSale(ctx context.Context) (*model.SaleRecord, error) {
	var out *model.SaleRecord
	err := s.do(ctx, func() error {
		out = s.checkout.LastSale()
		return nil
	})
	return out, err
}

func (s *posService) Cart(ctx context.Context) (*CartView, error) {
	var out CartView
	err := s.do(ctx, func() error {
		out = s.view()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Listener registration must happen before Start.
func (s *posService) OnCartChanged(fn func(CartView)) {
	s.cartListeners = append(s.cartListeners, fn)
}

func (s *posService) OnSuggestionsChanged(fn func([]model.Suggestion)) {
	s.sugListeners = append(s.sugListeners, fn)
}

func (s *posService) OnCheckoutResult(fn func(checkout.Result)) {
	s.outListeners = append(s.outListeners, fn)
}

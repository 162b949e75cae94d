package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go-pos-ws/internal/cart"
	"go-pos-ws/internal/checkout"
	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/scanner"
	"go-pos-ws/internal/service"
	"go-pos-ws/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PosHandler struct {
	service     service.PosService
	results     chan checkout.Result
	waitTimeout time.Duration
}

// NewPosHandler must be called before the service starts so that checkout
// results reach HTTP callers.
func NewPosHandler(s service.PosService, checkoutWait time.Duration) *PosHandler {
	h := &PosHandler{service: s, results: make(chan checkout.Result, 1), waitTimeout: checkoutWait}
	s.OnCheckoutResult(func(r checkout.Result) {
		select {
		case h.results <- r:
		default:
		}
	})
	return h
}

// Register mounts the terminal routes on r.
func (h *PosHandler) Register(r fiber.Router, checkoutGuard ...fiber.Handler) {
	r.Get("/cart", h.GetCart)
	r.Post("/cart/products/:id", h.AddProduct)
	r.Post("/cart/bundles/:id", h.AddBundle)
	r.Patch("/cart/lines/:index", h.UpdateLine)
	r.Delete("/cart/lines/:index", h.RemoveLine)
	r.Delete("/cart", h.ClearCart)
	r.Put("/cart/discount", h.SetDiscount)
	r.Put("/cart/customer", h.SelectCustomer)

	r.Post("/scan", h.Scan)
	r.Post("/keys", h.Key)
	r.Post("/checkout", append(checkoutGuard, h.Checkout)...)
	r.Get("/sales/last", h.LastSale)

	r.Get("/suggestions", h.GetSuggestions)
	r.Post("/suggestions/:productId", h.AddSuggestion)

	r.Get("/products", h.GetProducts)
	r.Get("/categories", h.GetCategories)
	r.Get("/bundles", h.GetBundles)
	r.Post("/catalog/reload", h.ReloadCatalog)
}

type updateLineRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

type customerRequest struct {
	CustomerID *int64 `json:"customerId" validate:"omitempty,gt=0"`
}

type scanRequest struct {
	Barcode string `json:"barcode" validate:"required"`
}

// KeyRequest is a raw key event. Timestamp is in Unix milliseconds; zero means
// the terminal's clock.
type KeyRequest struct {
	Key       string `json:"key" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	TextInput bool   `json:"textInput"`
}

func (r KeyRequest) Event() scanner.KeyEvent {
	ev := scanner.KeyEvent{Key: r.Key, TextInput: r.TextInput}
	if r.Timestamp > 0 {
		ev.At = time.UnixMilli(r.Timestamp)
	}
	return ev
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid JSON")
	}
	return validator.FirstError(out)
}

func paramInt64(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps engine errors to HTTP statuses.
func writeError(c *fiber.Ctx, err error) error {
	var unavailable *cart.BundleUnavailableError
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrBundleNotFound),
		errors.Is(err, service.ErrUnknownBarcode),
		errors.Is(err, cart.ErrLineNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, cart.ErrInsufficientQuantity),
		errors.Is(err, checkout.ErrInProgress),
		errors.As(err, &unavailable):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyBarcode),
		errors.Is(err, checkout.ErrEmptyCart):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrCatalogNotReady),
		errors.Is(err, loop.ErrStopped):
		return c.Status(503).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(504).JSON(fiber.Map{"error": "Terminal is busy"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func (h *PosHandler) cartResponse(c *fiber.Ctx, status int) error {
	view, err := h.service.Cart(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(status).JSON(view)
}

func (h *PosHandler) GetCart(c *fiber.Ctx) error {
	return h.cartResponse(c, 200)
}

func (h *PosHandler) AddProduct(c *fiber.Ctx) error {
	id, ok := paramInt64(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}
	if err := h.service.AddProduct(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) AddBundle(c *fiber.Ctx) error {
	id, ok := paramInt64(c, "id")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid bundle ID"})
	}
	if err := h.service.AddBundle(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) UpdateLine(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid line index"})
	}
	var req updateLineRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.UpdateQuantity(c.UserContext(), index, req.Delta); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) RemoveLine(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid line index"})
	}
	if err := h.service.RemoveLine(c.UserContext(), index); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) ClearCart(c *fiber.Ctx) error {
	if err := h.service.ClearCart(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) SetDiscount(c *fiber.Ctx) error {
	var req discountRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.SetDiscount(c.UserContext(), req.Discount); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) SelectCustomer(c *fiber.Ctx) error {
	var req customerRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.service.SelectCustomer(c.UserContext(), req.CustomerID); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) Scan(c *fiber.Ctx) error {
	var req scanRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	product, err := h.service.Scan(c.UserContext(), req.Barcode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Product added", "data": product})
}

func (h *PosHandler) Key(c *fiber.Ctx) error {
	var req KeyRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	res, err := h.service.HandleKey(c.UserContext(), req.Event())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// Checkout submits the cart and waits a bounded time for the sale API. When
// the wait runs out the sale is still in flight and 202 is returned; the
// result then arrives over the websocket and GET /sales/last.
func (h *PosHandler) Checkout(c *fiber.Ctx) error {
	select {
	case <-h.results:
	default:
	}

	if err := h.service.Checkout(c.UserContext()); err != nil {
		return writeError(c, err)
	}

	select {
	case r := <-h.results:
		return checkoutResponse(c, r)
	default:
	}

	timer := time.NewTimer(h.waitTimeout)
	defer timer.Stop()
	select {
	case r := <-h.results:
		return checkoutResponse(c, r)
	case <-timer.C:
	case <-c.UserContext().Done():
	}
	return c.Status(202).JSON(fiber.Map{"message": "Sale submitted"})
}

func checkoutResponse(c *fiber.Ctx, r checkout.Result) error {
	if !r.OK() {
		return c.Status(502).JSON(fiber.Map{"error": r.Err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"message": "Sale completed", "data": r.Sale})
}

func (h *PosHandler) LastSale(c *fiber.Ctx) error {
	sale, err := h.service.LastSale(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	if sale == nil {
		return c.Status(404).JSON(fiber.Map{"error": "No sale completed yet"})
	}
	return c.JSON(sale)
}

func (h *PosHandler) GetSuggestions(c *fiber.Ctx) error {
	suggestions, err := h.service.Suggestions(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(suggestions)
}

func (h *PosHandler) AddSuggestion(c *fiber.Ctx) error {
	id, ok := paramInt64(c, "productId")
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}
	if err := h.service.AddSuggestion(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return h.cartResponse(c, 200)
}

func (h *PosHandler) GetProducts(c *fiber.Ctx) error {
	result, err := h.service.Search(c.UserContext(), c.Query("search"), c.Query("category"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

func (h *PosHandler) GetCategories(c *fiber.Ctx) error {
	categories, err := h.service.Categories(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(categories)
}

func (h *PosHandler) GetBundles(c *fiber.Ctx) error {
	bundles, err := h.service.Bundles(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(bundles)
}

func (h *PosHandler) ReloadCatalog(c *fiber.Ctx) error {
	if err := h.service.ReloadCatalog(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.Status(202).JSON(fiber.Map{"message": "Catalog reload started"})
}

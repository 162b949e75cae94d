package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"go-pos-ws/internal/client"
	"go-pos-ws/internal/model"
)

// serve runs app on a loopback port until the test ends and returns its base URL.
func serve(c *qt.C, app *fiber.App) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	go func() { _ = app.Listener(ln) }()
	c.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{DisableStartupMessage: true})
}

func TestListProductsForwardsToken(t *testing.T) {
	c := qt.New(t)
	app := newApp()
	auth := make(chan string, 1)
	app.Get("/api/products", func(ctx *fiber.Ctx) error {
		auth <- ctx.Get(fiber.HeaderAuthorization)
		return ctx.SendString(`[{"id":4,"name":"Rice 5kg","barcode":"6223000000045","sellingPrice":199.5,"currentStock":8,"minStock":2,"category":"Pantry","unit":"bag"}]`)
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app) + "/api/", Token: "secret-token"}, nil)

	products, err := b.ListProducts(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(<-auth, qt.Equals, "Bearer secret-token")
	c.Assert(products, qt.HasLen, 1)
	c.Assert(products[0].Name, qt.Equals, "Rice 5kg")
	c.Assert(products[0].SellingPrice.String(), qt.Equals, "199.5")
	c.Assert(products[0].CurrentStock, qt.Equals, 8)
}

func TestListActiveBundles(t *testing.T) {
	c := qt.New(t)
	app := newApp()
	app.Get("/bundles/active", func(ctx *fiber.Ctx) error {
		return ctx.SendString(`[{"id":3,"name":"Family Pack","price":250,"active":true,"items":[{"product":{"id":4,"name":"Rice 5kg","currentStock":8},"quantity":2}]}]`)
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app)}, nil)

	bundles, err := b.ListActiveBundles(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(bundles, qt.HasLen, 1)
	c.Assert(bundles[0].Items[0].Product.ID, qt.Equals, int64(4))
	c.Assert(bundles[0].AvailableCount(), qt.Equals, 4)
}

func TestSubmitSale(t *testing.T) {
	c := qt.New(t)
	c.Patch(&decimal.MarshalJSONWithoutQuotes, true)
	app := newApp()
	bodies := make(chan map[string]interface{}, 1)
	app.Post("/sales", func(ctx *fiber.Ctx) error {
		var body map[string]interface{}
		if err := json.Unmarshal(ctx.Body(), &body); err != nil {
			return err
		}
		bodies <- body
		return ctx.Status(fiber.StatusCreated).SendString(`{"id":900,"subtotal":60,"discount":5,"total":55,"paymentMethod":"CASH","createdAt":"2026-03-01T10:00:00Z"}`)
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app)}, nil)

	customer := int64(2)
	sale, err := b.SubmitSale(context.Background(), model.SaleRequest{
		CustomerID:    &customer,
		Items:         []model.SaleItemRequest{{ProductID: 4, Quantity: 1}},
		BundleIDs:     []int64{3, 3},
		Discount:      decimal.NewFromInt(5),
		PaymentMethod: model.PaymentCash,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(sale.ID, qt.Equals, int64(900))
	c.Assert(sale.Total.String(), qt.Equals, "55")

	got := <-bodies
	c.Assert(got["customerId"], qt.Equals, float64(2))
	c.Assert(got["bundleIds"], qt.DeepEquals, []interface{}{float64(3), float64(3)})
	c.Assert(got["discount"], qt.Equals, float64(5))
	c.Assert(got["paymentMethod"], qt.Equals, "CASH")
}

func TestSubmitSaleRejected(t *testing.T) {
	c := qt.New(t)
	app := newApp()
	app.Post("/sales", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusConflict).SendString("insufficient stock for Rice 5kg")
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app)}, nil)

	_, err := b.SubmitSale(context.Background(), model.SaleRequest{PaymentMethod: model.PaymentCash})
	var statusErr *client.StatusError
	c.Assert(errors.As(err, &statusErr), qt.IsTrue)
	c.Assert(statusErr.Code, qt.Equals, fiber.StatusConflict)
	c.Assert(err, qt.ErrorMatches, "POST /sales: status 409: insufficient stock for Rice 5kg")
}

func TestBasketSuggestionsRepeatsProductIDs(t *testing.T) {
	c := qt.New(t)
	app := newApp()
	queries := make(chan string, 1)
	app.Get("/recommendations/basket", func(ctx *fiber.Ctx) error {
		queries <- string(ctx.Request().URI().QueryString())
		return ctx.SendString(`[{"productId":9,"productName":"Oil 1L","frequency":14,"category":"Pantry","price":75}]`)
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app)}, nil)

	suggestions, err := b.BasketSuggestions(context.Background(), []int64{4, 7})
	c.Assert(err, qt.IsNil)
	c.Assert(<-queries, qt.Equals, "productIds=4&productIds=7")
	c.Assert(suggestions, qt.HasLen, 1)
	c.Assert(suggestions[0].Frequency, qt.Equals, int64(14))
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	c := qt.New(t)
	b := client.NewBackend(client.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.ListProducts(ctx)
	c.Assert(err, qt.ErrorIs, context.Canceled)
}

func TestMalformedBody(t *testing.T) {
	c := qt.New(t)
	app := newApp()
	app.Get("/products", func(ctx *fiber.Ctx) error {
		return ctx.SendString(`{"not":"a list"}`)
	})
	b := client.NewBackend(client.Config{BaseURL: serve(c, app)}, nil)

	_, err := b.ListProducts(context.Background())
	c.Assert(err, qt.ErrorMatches, "GET /products: decode response: .*")
}

package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"go-pos-ws/pkg/jwt"
)

func newApp(c *qt.C) (*fiber.App, *jwt.Manager) {
	tokens, err := jwt.NewManager("middleware-secret", time.Hour)
	c.Assert(err, qt.IsNil)

	app := fiber.New()
	app.Use(RequireAuth(tokens))
	app.Get("/whoami", func(ctx *fiber.Ctx) error {
		return ctx.SendString(Cashier(ctx).Name)
	})
	app.Post("/checkout", RequirePrivilege("transaction:create"), func(ctx *fiber.Ctx) error {
		return ctx.SendStatus(201)
	})
	return app, tokens
}

func TestRequireAuth(t *testing.T) {
	c := qt.New(t)
	app, tokens := newApp(c)
	token, err := tokens.GenerateToken(uuid.New(), "a@example.com", "Till 2", "CASHIER", nil)
	c.Assert(err, qt.IsNil)

	tests := []struct {
		about  string
		header string
		status int
	}{{
		about:  "missing header",
		status: 401,
	}, {
		about:  "wrong scheme",
		header: "Basic " + token,
		status: 401,
	}, {
		about:  "garbage token",
		header: "Bearer not-a-token",
		status: 401,
	}, {
		about:  "valid token",
		header: "Bearer " + token,
		status: 200,
	}, {
		about:  "scheme is case insensitive",
		header: "bearer " + token,
		status: 200,
	}}
	for _, test := range tests {
		c.Run(test.about, func(c *qt.C) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if test.header != "" {
				req.Header.Set("Authorization", test.header)
			}
			resp, err := app.Test(req)
			c.Assert(err, qt.IsNil)
			c.Assert(resp.StatusCode, qt.Equals, test.status)
		})
	}
}

func TestRequirePrivilege(t *testing.T) {
	c := qt.New(t)
	app, tokens := newApp(c)

	viewer, err := tokens.GenerateToken(uuid.New(), "", "Viewer", "VIEWER", []string{"product:view"})
	c.Assert(err, qt.IsNil)
	cashier, err := tokens.GenerateToken(uuid.New(), "", "Cashier", "CASHIER", []string{"product:view", "transaction:create"})
	c.Assert(err, qt.IsNil)

	req := httptest.NewRequest("POST", "/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	resp, err := app.Test(req)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 403)

	req = httptest.NewRequest("POST", "/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+cashier)
	resp, err = app.Test(req)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, 201)
}

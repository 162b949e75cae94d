// Package client talks to the store backend that owns the catalog, sales and
// recommendation data.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"go-pos-ws/internal/model"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Backend struct {
	base    string
	token   string
	timeout time.Duration
	log     *zap.Logger
}

func NewBackend(cfg Config, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Backend{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		log:     log.Named("backend"),
	}
}

func (b *Backend) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := b.do(ctx, fiber.Get(b.base+"/products"), fiber.MethodGet, "/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (b *Backend) ListActiveBundles(ctx context.Context) ([]model.Bundle, error) {
	var bundles []model.Bundle
	if err := b.do(ctx, fiber.Get(b.base+"/bundles/active"), fiber.MethodGet, "/bundles/active", &bundles); err != nil {
		return nil, err
	}
	return bundles, nil
}

func (b *Backend) SubmitSale(ctx context.Context, req model.SaleRequest) (*model.SaleRecord, error) {
	var sale model.SaleRecord
	agent := fiber.Post(b.base + "/sales").JSON(req)
	if err := b.do(ctx, agent, fiber.MethodPost, "/sales", &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// BasketSuggestions repeats productIds once per id.
func (b *Backend) BasketSuggestions(ctx context.Context, productIDs []int64) ([]model.Suggestion, error) {
	q := url.Values{}
	for _, id := range productIDs {
		q.Add("productIds", strconv.FormatInt(id, 10))
	}
	var suggestions []model.Suggestion
	agent := fiber.Get(b.base + "/recommendations/basket").QueryString(q.Encode())
	if err := b.do(ctx, agent, fiber.MethodGet, "/recommendations/basket", &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (b *Backend) do(ctx context.Context, agent *fiber.Agent, method, path string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent.Timeout(timeout)
	if b.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+b.token)
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	start := time.Now()
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		b.log.Warn("backend request failed", zap.String("method", method), zap.String("path", path), zap.Errors("errors", errs))
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}
	b.log.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", code),
		zap.Duration("latency", time.Since(start)))

	if code < 200 || code > 299 {
		return &StatusError{Method: method, Path: path, Code: code, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

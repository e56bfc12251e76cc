// Package bridge talks to the brokerage bridge: a small HTTP and WebSocket
// service running next to the broker's desktop API that exposes quotes,
// charts, balances and order entry.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/equitybot/internal/crypto"
	"github.com/alanyoungcy/equitybot/internal/domain"
)

// Client is the REST client for the bridge API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a bridge client. baseURL is the API root, e.g.
// "http://127.0.0.1:8700". auth may be nil for an unauthenticated bridge.
func NewClient(baseURL string, auth *crypto.HMACAuth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health reports whether the bridge holds a live brokerage session.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var resp healthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return false, fmt.Errorf("bridge: health: %w", err)
	}
	return resp.Connected, nil
}

// GetQuote returns the current quote for code.
func (c *Client) GetQuote(ctx context.Context, code string) (domain.Quote, error) {
	var resp quoteResponse
	if err := c.do(ctx, http.MethodGet, "/v1/quotes/"+url.PathEscape(code), nil, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("bridge: quote %s: %w", code, err)
	}
	return domain.Quote{
		Code:       code,
		Price:      resp.Price,
		Close:      resp.PrevClose,
		Volume:     resp.Volume,
		TradeValue: resp.TradeValue,
	}, nil
}

// GetPosition returns the account's holding of code.
func (c *Client) GetPosition(ctx context.Context, code string) (domain.Position, error) {
	var resp positionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/positions/"+url.PathEscape(code), nil, &resp); err != nil {
		return domain.Position{}, fmt.Errorf("bridge: position %s: %w", code, err)
	}
	return domain.Position{Code: code, Quantity: resp.Quantity, AvgPrice: resp.AvgPrice}, nil
}

// GetDailyBars returns up to count daily bars, newest first.
func (c *Client) GetDailyBars(ctx context.Context, code string, count int) ([]domain.DailyBar, error) {
	path := fmt.Sprintf("/v1/charts/%s/daily?count=%s", url.PathEscape(code), strconv.Itoa(count))
	var resp chartResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("bridge: daily bars %s: %w", code, err)
	}
	out := make([]domain.DailyBar, len(resp.Bars))
	for i, b := range resp.Bars {
		out[i] = b.toDomain()
	}
	return out, nil
}

// GetMarketKind returns the exchange code is listed on.
func (c *Client) GetMarketKind(ctx context.Context, code string) (domain.MarketKind, error) {
	var resp marketResponse
	if err := c.do(ctx, http.MethodGet, "/v1/markets/"+url.PathEscape(code), nil, &resp); err != nil {
		return domain.MarketUnknown, fmt.Errorf("bridge: market %s: %w", code, err)
	}
	return parseMarket(resp.Market), nil
}

// PlaceOrder submits an order. A broker-side refusal is reported through
// OrderResult, not as an error.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	body := orderRequest{
		ClientID: req.ClientID,
		Code:     req.Code,
		Side:     string(req.Side),
		Type:     string(req.Type),
		Quantity: req.Quantity,
	}
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("bridge: place order: %w", err)
	}
	return domain.OrderResult{Accepted: resp.Accepted, OrderID: resp.OrderID, Message: resp.Message}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do sends a signed request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var raw []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		raw = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, string(raw)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w: %w", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, apiErr.Message)
	default:
		return fmt.Errorf("bridge: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

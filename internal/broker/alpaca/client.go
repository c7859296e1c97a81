// Package alpaca is a thin REST client skeleton implementing
// internal/broker.Broker against an Alpaca-shaped trading API, adapted from
// the teacher's oanda.Client. It is not a full vendor SDK — none of the
// retrieved examples carry one — it covers exactly the eight operations
// spec.md §6.1 names, enough to stand in for the abstract broker dependency
// when MOMENTUM_BROKER=alpaca and credentials are present.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelalgo/momentum/internal/apperrors"
	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/market"
	"github.com/kestrelalgo/momentum/internal/ratelimit"
)

// maxTransientRetries is apperrors.BrokerTransient's documented policy: a
// rate limit, 5xx, or network blip is retried with exponential backoff up
// to 3 attempts before being surfaced as a cycle skip.
const maxTransientRetries = 3

// transientRetryBaseDelay is the first retry's backoff (doubling each
// subsequent attempt); a var rather than a const so tests can shrink it.
var transientRetryBaseDelay = 1 * time.Second

// Client talks to an Alpaca-shaped trading + market-data REST API.
type Client struct {
	baseURL    string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	budget     *ratelimit.Budget
}

// Config carries the credentials spec.md §6.1 requires be loaded from the
// environment at startup; their absence or a failed connection test aborts
// the owning service.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
}

// NewClient constructs a Client. Callers should immediately call GetClock to
// perform the connection test spec.md requires before relying on the client.
func NewClient(cfg Config, budget *ratelimit.Budget) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		dataURL:    cfg.DataURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		budget:     budget,
	}
}

func (c *Client) authHeaders(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
}

// do performs one request, retrying apperrors.BrokerTransient failures (5xx,
// 429, or a network-level error from httpClient.Do) with exponential backoff
// up to maxTransientRetries before giving up. A BrokerPermanent classification
// (4xx other than 429) never retries.
func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyBytes = b
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * transientRetryBaseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doOnce(ctx, method, url, bodyBytes, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.Is(err, apperrors.BrokerTransient) {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, bodyBytes []byte, out any) error {
	if err := c.budget.Wait(ctx); err != nil {
		return fmt.Errorf("rate budget: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.BrokerTransient, "http do", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.New(apperrors.BrokerTransient, "http status", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apperrors.New(apperrors.BrokerPermanent, "http status", fmt.Errorf("status %d", resp.StatusCode))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) GetClock(ctx context.Context) (broker.Clock, error) {
	var raw struct {
		IsOpen    bool      `json:"is_open"`
		NextOpen  time.Time `json:"next_open"`
		NextClose time.Time `json:"next_close"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/clock", nil, &raw); err != nil {
		return broker.Clock{}, err
	}
	return broker.Clock{IsOpen: raw.IsOpen, NextOpen: raw.NextOpen, NextClose: raw.NextClose}, nil
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var raw struct {
		Equity string `json:"equity"`
		Cash   string `json:"cash"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/account", nil, &raw); err != nil {
		return broker.Account{}, err
	}
	var equity, cash float64
	fmt.Sscanf(raw.Equity, "%f", &equity)
	fmt.Sscanf(raw.Cash, "%f", &cash)
	return broker.Account{Equity: equity, Cash: cash}, nil
}

func (c *Client) ListPositions(ctx context.Context) ([]broker.PositionView, error) {
	var raw []struct {
		Symbol        string `json:"symbol"`
		Qty           string `json:"qty"`
		AvgEntryPrice string `json:"avg_entry_price"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/positions", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]broker.PositionView, 0, len(raw))
	for _, r := range raw {
		var qty, px float64
		fmt.Sscanf(r.Qty, "%f", &qty)
		fmt.Sscanf(r.AvgEntryPrice, "%f", &px)
		out = append(out, broker.PositionView{Symbol: r.Symbol, Qty: qty, AvgEntryPrice: px})
	}
	return out, nil
}

func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	var raw struct {
		Quote struct {
			BidPrice float64 `json:"bp"`
			AskPrice float64 `json:"ap"`
		} `json:"quote"`
	}
	url := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", c.dataURL, symbol)
	if err := c.do(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return broker.Quote{}, err
	}
	return broker.Quote{Bid: raw.Quote.BidPrice, Ask: raw.Quote.AskPrice}, nil
}

func (c *Client) GetBars(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Bar, error) {
	var raw struct {
		Bars []struct {
			T time.Time `json:"t"`
			O float64   `json:"o"`
			H float64   `json:"h"`
			L float64   `json:"l"`
			C float64   `json:"c"`
			V float64   `json:"v"`
		} `json:"bars"`
	}
	url := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d", c.dataURL, symbol, tf, limit)
	if err := c.do(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]market.Bar, 0, len(raw.Bars))
	for _, b := range raw.Bars {
		out = append(out, market.Bar{Time: b.T, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V})
	}
	return out, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	body := map[string]any{
		"symbol":          req.Symbol,
		"qty":             fmt.Sprintf("%g", req.Qty),
		"side":            req.Side,
		"type":            req.Type,
		"time_in_force":   req.TimeInForce,
		"client_order_id": req.ClientOrderID,
	}
	if req.Type == broker.Limit {
		body["limit_price"] = fmt.Sprintf("%.2f", req.LimitPrice)
	}
	var raw struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", body, &raw); err != nil {
		return "", err
	}
	return raw.ID, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (broker.OrderState, error) {
	var raw struct {
		Status         string `json:"status"`
		FilledQty      string `json:"filled_qty"`
		FilledAvgPrice string `json:"filled_avg_price"`
	}
	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, orderID)
	if err := c.do(ctx, http.MethodGet, url, nil, &raw); err != nil {
		return broker.OrderState{}, err
	}
	var filled, avg float64
	fmt.Sscanf(raw.FilledQty, "%f", &filled)
	fmt.Sscanf(raw.FilledAvgPrice, "%f", &avg)
	return broker.OrderState{Status: broker.OrderStatus(raw.Status), FilledQty: filled, FilledAvgPrice: avg}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/v2/orders/%s", c.baseURL, orderID)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

var _ broker.Broker = (*Client)(nil)

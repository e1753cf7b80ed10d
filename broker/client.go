package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sentitrade/market"
)

const (
	// PaperURL is the paper-trading environment.
	PaperURL = "https://paper-api.alpaca.markets"
	// LiveURL is the live trading environment.
	LiveURL = "https://api.alpaca.markets"
	// DataURL serves market data for both environments.
	DataURL = "https://data.alpaca.markets"
)

// Client is a REST client for the brokerage API.
type Client struct {
	baseURL    string
	dataURL    string
	key        string
	secret     string
	httpClient *http.Client
}

// NewClient creates a brokerage client. paper selects the paper-trading
// environment.
func NewClient(key, secret string, paper bool) *Client {
	baseURL := LiveURL
	if paper {
		baseURL = PaperURL
	}

	return &Client{
		baseURL: baseURL,
		dataURL: DataURL,
		key:     key,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"` // signed: negative for short
	AvgEntryPrice string `json:"avg_entry_price"`
}

// GetPositions fetches all open positions.
func (c *Client) GetPositions(ctx context.Context) (map[string]market.Position, error) {
	var raw []apiPosition
	if err := c.get(ctx, c.baseURL+"/v2/positions", &raw); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	out := make(map[string]market.Position, len(raw))
	for _, p := range raw {
		qty, err := strconv.ParseInt(p.Qty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("get positions: parse qty %q for %s: %w", p.Qty, p.Symbol, err)
		}
		avg, err := strconv.ParseFloat(p.AvgEntryPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("get positions: parse avg price %q for %s: %w", p.AvgEntryPrice, p.Symbol, err)
		}
		out[p.Symbol] = market.Position{
			Symbol:        p.Symbol,
			Quantity:      qty,
			AvgEntryPrice: avg,
		}
	}
	return out, nil
}

type apiOrder struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
}

// GetOpenOrders fetches orders still working at the broker.
func (c *Client) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var raw []apiOrder
	if err := c.get(ctx, c.baseURL+"/v2/orders?status=open", &raw); err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	out := make([]Order, 0, len(raw))
	for _, o := range raw {
		qty, err := strconv.ParseInt(o.Qty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("get open orders: parse qty %q: %w", o.Qty, err)
		}
		out = append(out, Order{
			ID:       o.ID,
			ClientID: o.ClientOrderID,
			Symbol:   o.Symbol,
			Side:     market.Side(o.Side),
			Qty:      qty,
		})
	}
	return out, nil
}

// SubmitOrder places an order and returns the broker-assigned order id.
// A 4xx response other than 429 becomes a RejectionError.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", &RejectionError{Symbol: req.Symbol, Reason: err.Error()}
	}

	body := map[string]any{
		"client_order_id": req.ClientID,
		"symbol":          req.Symbol,
		"qty":             strconv.FormatInt(req.Qty, 10),
		"side":            string(req.Side),
		"type":            req.Type,
		"time_in_force":   req.TimeInForce,
	}
	if req.Type == "limit" {
		body["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', 2, 64)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/orders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	c.auth(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		return "", &RejectionError{Symbol: req.Symbol, Reason: string(msg)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("submit order: API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var placed apiOrder
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return "", fmt.Errorf("submit order: decode response: %w", err)
	}
	return placed.ID, nil
}

type latestTradeResponse struct {
	Trade struct {
		Price float64 `json:"p"`
	} `json:"trade"`
}

// GetLatestPrice fetches the price of the most recent trade for symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	var raw latestTradeResponse
	url := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", c.dataURL, symbol)
	if err := c.get(ctx, url, &raw); err != nil {
		return 0, fmt.Errorf("get latest price for %s: %w", symbol, err)
	}
	if raw.Trade.Price <= 0 {
		return 0, fmt.Errorf("get latest price for %s: no trade reported", symbol)
	}
	return raw.Trade.Price, nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

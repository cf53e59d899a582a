package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Broker places live certificate orders. Implementations must report
// placement failures as errors so callers can capture the message verbatim.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	CloseOrder(ctx context.Context, req CloseRequest) (*OrderResult, error)
}

type OrderRequest struct {
	UserID         string          `json:"user_id"`
	InstrumentType string          `json:"instrument_type"`
	Amount         decimal.Decimal `json:"amount"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	TargetPrice    decimal.Decimal `json:"target_price,omitempty"`
	StopLoss       decimal.Decimal `json:"stop_loss,omitempty"`
}

type CloseRequest struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

type OrderResult struct {
	OrderID     string          `json:"order_id"`
	FilledPrice decimal.Decimal `json:"filled_price"`
	Status      string          `json:"status"`
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker error (%d): %s", e.Status, e.Body)
}

// Client talks to the certificate broker's order API.
type Client struct {
	host       string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, host string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	host = strings.TrimRight(host, "/")
	return &Client{host: host, httpClient: httpClient}
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return c.doOrder(ctx, "/orders", req)
}

func (c *Client) CloseOrder(ctx context.Context, req CloseRequest) (*OrderResult, error) {
	return c.doOrder(ctx, "/orders/close", req)
}

func (c *Client) doOrder(ctx context.Context, path string, payload any) (*OrderResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var out OrderResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse order result: %w", err)
	}
	return &out, nil
}

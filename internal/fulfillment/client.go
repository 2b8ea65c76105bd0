// Package fulfillment предоставляет клиент внешнего провайдера исполнения наград.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// Client инкапсулирует HTTP-взаимодействие с провайдером исполнения наград.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Request описывает заявку на исполнение награды для провайдера.
type Request struct {
	RedemptionID int64           `json:"redemption_id"`
	Provider     string          `json:"provider"`
	ExternalID   string          `json:"external_id"`
	Teammate     string          `json:"teammate"`
	Points       decimal.Decimal `json:"points"`
}

// Result описывает ответ провайдера по одной заявке.
type Result struct {
	RedemptionID int64  `json:"redemption_id"`
	Status       string `json:"status"`
	Reference    string `json:"reference,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Статусы заявки в ответе провайдера.
const (
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// NewClient создаёт HTTP-клиент провайдера исполнения наград по указанному адресу.
// Временные сбои сети и ответы 5xx повторяются автоматически.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = 5 * time.Second
	// 429 отдаётся вызывающей стороне вместе с Retry-After, без повторов здесь.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// SubmitRedemption отправляет заявку на исполнение награды провайдеру.
func (c *Client) SubmitRedemption(ctx context.Context, fr Request) (*Result, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("fulfillment client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/fulfillments", base)

	body, err := json.Marshal(fr)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}

// Package storefront implements the signed, rate-limit-aware HTTP client
// for the storefront's bot order-verification endpoint.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/convo/backend/internal/domain/orders"
	"github.com/convo/backend/internal/domain/shared"
	"github.com/convo/backend/internal/infrastructure/signing"
)

const orderLookupPath = "/bot/order-lookup"

// maxResponseSize caps how much of a lookup response is read (1MB)
const maxResponseSize = 1 * 1024 * 1024

// Config holds the client configuration
type Config struct {
	// BaseURL of the storefront backend, without trailing slash
	BaseURL string
	// Timeout is the per-attempt timeout
	Timeout time.Duration
	// Retry is the policy applied across attempts
	Retry orders.RetryPolicy
}

// Client implements orders.LookupClient against the storefront backend.
// Every attempt is signed with a fresh timestamp and nonce so that the
// single 401 retry genuinely re-signs instead of replaying.
type Client struct {
	config     Config
	signer     *signing.Signer
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a storefront lookup client
func NewClient(cfg Config, signer *signing.Signer, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("storefront: base URL is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("storefront: signer is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Retry.BackoffBase <= 0 {
		cfg.Retry = orders.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     cfg,
		signer:     signer,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type lookupRequest struct {
	OrderID  int64  `json:"order_id"`
	DNI      string `json:"dni,omitempty"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"last_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type lookupResponse struct {
	Order struct {
		ID            int64           `json:"id"`
		State         string          `json:"state"`
		CreatedAt     string          `json:"created_at"`
		UpdatedAt     string          `json:"updated_at"`
		Total         decimal.Decimal `json:"total"`
		PaymentMethod string          `json:"payment_method"`
		ShipMethod    string          `json:"ship_method"`
		TrackingCode  string          `json:"tracking_code"`
	} `json:"order"`
}

// LookupOrder issues the signed lookup call, applying the retry policy per
// response status. Business outcomes come back as a typed LookupResult;
// timeouts, network failures and unmapped statuses are errors wrapping
// shared.ErrExternalService.
func (c *Client) LookupOrder(ctx context.Context, requestID string, orderID int64, factors orders.IdentityFactors) (*orders.LookupResult, error) {
	body, err := json.Marshal(lookupRequest{
		OrderID:  orderID,
		DNI:      factors.DNI,
		Name:     factors.Name,
		LastName: factors.LastName,
		Phone:    factors.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("storefront: failed to marshal lookup request: %w", err)
	}

	attempt := 0
	for {
		attempt++

		status, respBody, err := c.doAttempt(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("%w: order lookup attempt %d: %v", shared.ErrExternalService, attempt, err)
		}

		switch status {
		case http.StatusOK:
			result, err := c.parseSuccess(respBody)
			if err != nil {
				return nil, err
			}
			result.Attempts = attempt
			return result, nil

		case http.StatusNotFound:
			// Order id and identity factors did not match; retrying
			// changes nothing.
			return &orders.LookupResult{Code: orders.LookupNotFoundOrMismatch, HTTPStatus: status, Attempts: attempt}, nil

		case http.StatusUnprocessableEntity:
			return &orders.LookupResult{Code: orders.LookupInvalidPayload, HTTPStatus: status, Attempts: attempt}, nil

		case http.StatusUnauthorized, http.StatusTooManyRequests:
			retry, delay := c.config.Retry.ShouldRetry(status, attempt)
			if retry {
				c.logger.Debug("retrying order lookup",
					zap.String("request_id", requestID),
					zap.Int("status", status),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay))
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, fmt.Errorf("%w: order lookup cancelled during backoff: %v", shared.ErrExternalService, err)
				}
				continue
			}
			code := orders.LookupUnauthorized
			if status == http.StatusTooManyRequests {
				code = orders.LookupThrottled
			}
			return &orders.LookupResult{Code: code, HTTPStatus: status, Attempts: attempt}, nil

		default:
			return nil, fmt.Errorf("%w: order lookup returned HTTP %d", shared.ErrExternalService, status)
		}
	}
}

// doAttempt performs one signed HTTP call with fresh credentials
func (c *Client) doAttempt(ctx context.Context, body []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.config.BaseURL+orderLookupPath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := signing.Nonce()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Bot-Timestamp", timestamp)
	req.Header.Set("X-Bot-Nonce", nonce)
	req.Header.Set("X-Bot-Signature", c.signer.Sign(http.MethodPost, orderLookupPath, timestamp, nonce, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func (c *Client) parseSuccess(respBody []byte) (*orders.LookupResult, error) {
	var parsed lookupResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse lookup response: %v", shared.ErrExternalService, err)
	}

	order := &orders.Order{
		ID:            parsed.Order.ID,
		State:         parsed.Order.State,
		Total:         parsed.Order.Total,
		PaymentMethod: parsed.Order.PaymentMethod,
		ShipMethod:    parsed.Order.ShipMethod,
		TrackingCode:  parsed.Order.TrackingCode,
	}
	if t, err := time.Parse(time.RFC3339, parsed.Order.CreatedAt); err == nil {
		order.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, parsed.Order.UpdatedAt); err == nil {
		order.UpdatedAt = t
	}

	return &orders.LookupResult{
		Code:       orders.LookupSuccess,
		HTTPStatus: http.StatusOK,
		Order:      order,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ orders.LookupClient = (*Client)(nil)

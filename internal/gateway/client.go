// Package gateway is the HTTP client for the external payment gateway.
// Only the contract the reservation engine needs is implemented: order
// creation before the client-side checkout handshake, and server-side
// verification of the callback before any money is recorded.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrVerificationFailed is returned when the callback signature does not
// match. Not retried silently: a mismatch may indicate tampering.
var ErrVerificationFailed = errors.New("payment verification failed")

// Client calls the payment gateway's order API.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	currency   string
	httpClient *http.Client
}

// NewClient constructs a gateway client.
func NewClient(baseURL, keyID, keySecret, currency string) *Client {
	return &Client{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		currency:   currency,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// OrderRequest is the request body for POST /v1/orders.
type OrderRequest struct {
	Amount      int64  `json:"amount"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	VenueID     int64  `json:"venue_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Duration    int    `json:"duration"`
	IsAdvance   bool   `json:"is_advance"`
	MatchID     *int64 `json:"match_id,omitempty"`
}

// Order is the gateway's order, handed to the client-side checkout UI.
// ReservationID is echoed back so the core can persist it before handoff.
type Order struct {
	OrderID       string `json:"order_id"`
	GatewayKey    string `json:"gateway_key"`
	Currency      string `json:"currency"`
	Amount        int64  `json:"amount"`
	ReservationID int64  `json:"reservation_id"`
}

// CreateOrder creates an external order for the exact amount being
// committed (full gross or the resolved advance amount).
func (c *Client) CreateOrder(ctx context.Context, reservationID int64, req OrderRequest) (*Order, error) {
	if req.Receipt == "" {
		req.Receipt = uuid.NewString()
	}
	if req.Currency == "" {
		req.Currency = c.currency
	}

	var order Order
	if err := c.doPost(ctx, c.baseURL+"/v1/orders", req, &order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	order.GatewayKey = c.keyID
	order.ReservationID = reservationID
	return &order, nil
}

// Callback carries the gateway's own identifiers from the checkout
// handshake, plus the reservation they belong to.
type Callback struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	Signature     string `json:"signature"`
	ReservationID int64  `json:"reservation_id"`
	IsAdvance     bool   `json:"is_advance"`
}

// Verify checks the callback signature server-side. The signature is
// HMAC-SHA256 of "orderID|paymentID" under the gateway secret; any mismatch
// or missing field is ErrVerificationFailed.
func (c *Client) Verify(cb Callback) error {
	if cb.OrderID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return ErrVerificationFailed
	}

	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(cb.OrderID + "|" + cb.PaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(cb.Signature))) {
		return ErrVerificationFailed
	}
	return nil
}

// Sign produces the signature the gateway would send for an order/payment
// pair. Exposed for tests and sandbox tooling.
func (c *Client) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerify(t *testing.T) {
	c := NewClient("http://gateway", "key-id", "secret", "INR")

	valid := Callback{
		OrderID:   "order_123",
		PaymentID: "pay_456",
		Signature: c.Sign("order_123", "pay_456"),
	}
	if err := c.Verify(valid); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	tests := []struct {
		name string
		cb   Callback
	}{
		{"tampered signature", Callback{OrderID: "order_123", PaymentID: "pay_456", Signature: "deadbeef"}},
		{"signature for other order", Callback{OrderID: "order_999", PaymentID: "pay_456", Signature: valid.Signature}},
		{"missing order id", Callback{PaymentID: "pay_456", Signature: valid.Signature}},
		{"missing payment id", Callback{OrderID: "order_123", Signature: valid.Signature}},
		{"missing signature", Callback{OrderID: "order_123", PaymentID: "pay_456"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Verify(tt.cb); !errors.Is(err, ErrVerificationFailed) {
				t.Errorf("Verify() = %v, want ErrVerificationFailed", err)
			}
		})
	}
}

func TestVerifyIsCaseInsensitiveOnHex(t *testing.T) {
	c := NewClient("http://gateway", "key-id", "secret", "INR")
	sig := c.Sign("order_123", "pay_456")
	cb := Callback{OrderID: "order_123", PaymentID: "pay_456", Signature: strings.ToUpper(sig)}
	if err := c.Verify(cb); err != nil {
		t.Errorf("uppercase hex signature rejected: %v", err)
	}
}

func TestVerifyDifferentSecretsDisagree(t *testing.T) {
	a := NewClient("http://gateway", "key-id", "secret-a", "INR")
	b := NewClient("http://gateway", "key-id", "secret-b", "INR")
	if a.Sign("o", "p") == b.Sign("o", "p") {
		t.Error("different secrets must produce different signatures")
	}
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key-id" || pass != "secret" {
			t.Error("missing or wrong basic auth")
		}

		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 500 || req.Currency != "INR" {
			t.Errorf("unexpected order request: %+v", req)
		}
		if req.Receipt == "" {
			t.Error("receipt must be generated when empty")
		}

		_ = json.NewEncoder(w).Encode(Order{OrderID: "order_abc", Currency: req.Currency, Amount: req.Amount})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-id", "secret", "INR")
	order, err := c.CreateOrder(context.Background(), 42, OrderRequest{Amount: 500, TotalAmount: 1000, IsAdvance: true})
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	if order.OrderID != "order_abc" {
		t.Errorf("OrderID = %s, want order_abc", order.OrderID)
	}
	if order.ReservationID != 42 {
		t.Errorf("ReservationID = %d, want 42", order.ReservationID)
	}
	if order.GatewayKey != "key-id" {
		t.Errorf("GatewayKey = %s, want key-id", order.GatewayKey)
	}
}

func TestCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-id", "secret", "INR")
	if _, err := c.CreateOrder(context.Background(), 1, OrderRequest{Amount: 100}); err == nil {
		t.Error("expected error on gateway 502")
	}
}

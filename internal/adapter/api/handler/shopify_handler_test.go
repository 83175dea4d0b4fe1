package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/conversion-relay/internal/usecase"
)

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	Orders  []usecase.OrderPurchase
	Carts   []usecase.CartAdd
	Err     error
	CartErr error
}

func (m *MockOrderService) RelayOrderPurchase(ctx context.Context, order usecase.OrderPurchase) (usecase.RelayResult, error) {
	m.Orders = append(m.Orders, order)
	if m.Err != nil {
		return usecase.RelayResult{}, m.Err
	}
	return usecase.RelayResult{EventID: "evt-1", ExternalID: order.ExternalID}, nil
}

func (m *MockOrderService) RelayCartAdd(ctx context.Context, cart usecase.CartAdd) (usecase.RelayResult, error) {
	m.Carts = append(m.Carts, cart)
	if m.CartErr != nil {
		return usecase.RelayResult{}, m.CartErr
	}
	return usecase.RelayResult{EventID: "evt-2", ExternalID: cart.ExternalID}, nil
}

const orderPayload = `{
	"id": 9001,
	"order_number": 1042,
	"currency": "BRL",
	"total_price": "249.90",
	"landing_site": "/products/shoe?ref=ad",
	"customer": {"first_name": "Maria Clara", "last_name": "da Silva", "email": "Maria@Example.com"},
	"billing_address": {"phone": "+55 (11) 91234-5678", "country_code": "BR", "province_code": "SP", "city": "Campinas", "zip": "13000-000"},
	"note_attributes": [{"name": "external_id", "value": "ext-7"}],
	"line_items": [{"sku": "sku-1"}, {"sku": ""}, {"sku": "sku-2"}]
}`

func TestShopifyHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("order mapped to purchase", func(t *testing.T) {
		mock := &MockOrderService{}
		h := NewShopifyHandler(mock, logger, 1<<16)

		req := httptest.NewRequest(http.MethodPost, "/webhook/shopify", strings.NewReader(orderPayload))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}

		order := mock.Orders[0]
		if order.OrderID != "9001" || order.ExternalID != "ext-7" {
			t.Errorf("order identity: %+v", order)
		}
		if order.Personal.FirstName != "maria" || order.Personal.LastName != "silva" {
			t.Errorf("name split: %+v", order.Personal)
		}
		if order.Personal.Email != "maria@example.com" {
			t.Errorf("email: %q", order.Personal.Email)
		}
		if order.Personal.Phone != "5511912345678" {
			t.Errorf("phone: %q", order.Personal.Phone)
		}
		if order.Value.String() != "249.9" {
			t.Errorf("value: %s", order.Value)
		}
		if order.CountryCode != "br" || order.RegionCode != "sp" || order.City != "campinas" {
			t.Errorf("billing geo: %+v", order)
		}
		if len(order.ContentIDs) != 2 || order.ContentIDs[0] != "sku-1" || order.ContentIDs[1] != "sku-2" {
			t.Errorf("content ids: %v", order.ContentIDs)
		}

		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["eventID"] != "evt-1" || body["external_id"] != "ext-7" {
			t.Errorf("response: %v", body)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		h := NewShopifyHandler(&MockOrderService{}, logger, 1<<16)
		req := httptest.NewRequest(http.MethodPost, "/webhook/shopify", strings.NewReader("{nope"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("relay failure is opaque", func(t *testing.T) {
		h := NewShopifyHandler(&MockOrderService{Err: io.ErrUnexpectedEOF}, logger, 1<<16)
		req := httptest.NewRequest(http.MethodPost, "/webhook/shopify", strings.NewReader(orderPayload))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rr.Code)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["error"] != "internal server error" {
			t.Errorf("internal detail leaked: %q", body["error"])
		}
	})
}

func TestOrderExternalID(t *testing.T) {
	decode := func(t *testing.T, body string) shopifyOrder {
		t.Helper()
		var raw shopifyOrder
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		return raw
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "note attribute",
			body: `{"note_attributes": [{"name": "external_id", "value": "ext-1"}]}`,
			want: "ext-1",
		},
		{
			name: "underscored note attribute",
			body: `{"note_attributes": [{"name": "_external_id", "value": "ext-2"}]}`,
			want: "ext-2",
		},
		{
			name: "landing site query parameter",
			body: `{"landing_site": "/products/shoe?ref=ad&external_id=ext-3"}`,
			want: "ext-3",
		},
		{
			name: "customer tag",
			body: `{"customer": {"tags": "vip, external_id: ext-4 , retained"}}`,
			want: "ext-4",
		},
		{
			name: "note attribute wins over landing site",
			body: `{"note_attributes": [{"name": "external_id", "value": "ext-5"}], "landing_site": "/?external_id=other"}`,
			want: "ext-5",
		},
		{
			name: "nothing attached",
			body: `{"landing_site": "/products/shoe?ref=ad"}`,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := orderExternalID(decode(t, tc.body)); got != tc.want {
				t.Errorf("orderExternalID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestShopifyHandlerAddToCart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	const cartPayload = `{
		"external_id": "ext-7",
		"product_id": "sku-9",
		"_fbc": "fb.1.1.click",
		"_fbp": "fb.1.1.pair",
		"event_source_url": "https://shop.example.com/products/shoe"
	}`

	t.Run("cart add relayed", func(t *testing.T) {
		mock := &MockOrderService{}
		h := NewShopifyHandler(mock, logger, 1<<16)

		req := httptest.NewRequest(http.MethodPost, "/shopify/add-to-cart", strings.NewReader(cartPayload))
		rr := httptest.NewRecorder()
		h.AddToCart(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		cart := mock.Carts[0]
		if cart.ExternalID != "ext-7" || cart.ProductID != "sku-9" {
			t.Errorf("cart identity: %+v", cart)
		}
		if cart.ClickID != "fb.1.1.click" || cart.PairingID != "fb.1.1.pair" {
			t.Errorf("browser identifiers: %+v", cart)
		}
		if cart.SourceURL != "https://shop.example.com/products/shoe" {
			t.Errorf("source url: %q", cart.SourceURL)
		}

		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["eventID"] != "evt-2" || body["external_id"] != "ext-7" {
			t.Errorf("response: %v", body)
		}
	})

	t.Run("missing identifiers rejected", func(t *testing.T) {
		for name, payload := range map[string]string{
			"no external id": `{"product_id": "sku-9"}`,
			"no product id":  `{"external_id": "ext-7"}`,
		} {
			mock := &MockOrderService{}
			h := NewShopifyHandler(mock, logger, 1<<16)
			req := httptest.NewRequest(http.MethodPost, "/shopify/add-to-cart", strings.NewReader(payload))
			rr := httptest.NewRecorder()
			h.AddToCart(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", name, rr.Code)
			}
			if len(mock.Carts) != 0 {
				t.Errorf("%s: relay called on invalid input", name)
			}
		}
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		h := NewShopifyHandler(&MockOrderService{CartErr: usecase.ErrUserNotFound}, logger, 1<<16)
		req := httptest.NewRequest(http.MethodPost, "/shopify/add-to-cart", strings.NewReader(cartPayload))
		rr := httptest.NewRecorder()
		h.AddToCart(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["error"] != "user not found" {
			t.Errorf("body: %v", body)
		}
	})

	t.Run("relay failure is opaque", func(t *testing.T) {
		h := NewShopifyHandler(&MockOrderService{CartErr: io.ErrUnexpectedEOF}, logger, 1<<16)
		req := httptest.NewRequest(http.MethodPost, "/shopify/add-to-cart", strings.NewReader(cartPayload))
		rr := httptest.NewRecorder()
		h.AddToCart(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rr.Code)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["error"] != "internal server error" {
			t.Errorf("internal detail leaked: %q", body["error"])
		}
	})
}

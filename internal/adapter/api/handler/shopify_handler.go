package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/user/conversion-relay/internal/adapter/identity"
	"github.com/user/conversion-relay/internal/domain"
	"github.com/user/conversion-relay/internal/usecase"
)

// OrderService is the use-case surface the storefront handlers depend on.
type OrderService interface {
	RelayOrderPurchase(ctx context.Context, order usecase.OrderPurchase) (usecase.RelayResult, error)
	RelayCartAdd(ctx context.Context, cart usecase.CartAdd) (usecase.RelayResult, error)
}

// ShopifyHandler handles the storefront-side endpoints: POST /webhook/shopify
// order notifications and POST /shopify/add-to-cart theme calls.
type ShopifyHandler struct {
	service     OrderService
	logger      *slog.Logger
	maxBodySize int64
}

// NewShopifyHandler creates a new ShopifyHandler.
func NewShopifyHandler(service OrderService, logger *slog.Logger, maxBodySize int64) *ShopifyHandler {
	return &ShopifyHandler{
		service:     service,
		logger:      logger.With("component", "shopify_handler"),
		maxBodySize: maxBodySize,
	}
}

// shopifyOrder is the subset of Shopify's order webhook the relay uses.
type shopifyOrder struct {
	ID          json.Number `json:"id"`
	OrderNumber json.Number `json:"order_number"`
	Currency    string      `json:"currency"`
	TotalPrice  string      `json:"total_price"`
	LandingSite string      `json:"landing_site"`
	Customer    struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Tags      string `json:"tags"`
	} `json:"customer"`
	BillingAddress struct {
		Phone        string `json:"phone"`
		CountryCode  string `json:"country_code"`
		ProvinceCode string `json:"province_code"`
		City         string `json:"city"`
		Zip          string `json:"zip"`
	} `json:"billing_address"`
	NoteAttributes []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"note_attributes"`
	LineItems []struct {
		SKU string `json:"sku"`
	} `json:"line_items"`
}

// ServeHTTP relays a Shopify order as a server-side Purchase event.
func (h *ShopifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var raw shopifyOrder
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	order := toOrderPurchase(raw)
	result, err := h.service.RelayOrderPurchase(r.Context(), order)
	if err != nil {
		h.logger.Error("order webhook relay failed", "error", err, "order_id", order.OrderID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"eventID":     result.EventID,
		"external_id": result.ExternalID,
	})
}

// cartAddPayload is the body of a theme-side add-to-cart call.
type cartAddPayload struct {
	ExternalID     string `json:"external_id"`
	ProductID      string `json:"product_id"`
	ClickID        string `json:"_fbc"`
	PairingID      string `json:"_fbp"`
	EventSourceURL string `json:"event_source_url"`
}

// AddToCart relays a theme-reported add-to-cart for a user the pixel has
// already registered. Unknown external ids are a 404, not a silent skip: the
// theme retries once the page-view call has landed.
func (h *ShopifyHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var payload cartAddPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if payload.ExternalID == "" || payload.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	result, err := h.service.RelayCartAdd(r.Context(), usecase.CartAdd{
		ExternalID: payload.ExternalID,
		ProductID:  payload.ProductID,
		ClickID:    payload.ClickID,
		PairingID:  payload.PairingID,
		SourceURL:  payload.EventSourceURL,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		h.logger.Error("add-to-cart relay failed", "error", err, "external_id", payload.ExternalID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"eventID":     result.EventID,
		"external_id": result.ExternalID,
	})
}

func toOrderPurchase(raw shopifyOrder) usecase.OrderPurchase {
	// The webhook carries one free-form customer name; first and last word
	// become the match keys, mirroring how the pixel splits names.
	full := strings.ToLower(strings.TrimSpace(raw.Customer.FirstName + " " + raw.Customer.LastName))
	names := strings.Fields(full)
	var fn, ln string
	if len(names) > 0 {
		fn = names[0]
	}
	if len(names) > 1 {
		ln = names[len(names)-1]
	}

	personal := identity.NormalizePersonalData(domain.PersonalData{
		FirstName: fn,
		LastName:  ln,
		Email:     raw.Customer.Email,
		Phone:     raw.BillingAddress.Phone,
	})

	order := usecase.OrderPurchase{
		OrderID:     raw.ID.String(),
		ExternalID:  orderExternalID(raw),
		Personal:    personal,
		Currency:    raw.Currency,
		CountryCode: strings.ToLower(raw.BillingAddress.CountryCode),
		RegionCode:  strings.ToLower(raw.BillingAddress.ProvinceCode),
		City:        strings.ToLower(raw.BillingAddress.City),
		PostalCode:  raw.BillingAddress.Zip,
		SourceURL:   raw.LandingSite,
	}
	if value, err := decimal.NewFromString(raw.TotalPrice); err == nil {
		order.Value = &value
	}
	for _, item := range raw.LineItems {
		if item.SKU != "" {
			order.ContentIDs = append(order.ContentIDs, item.SKU)
		}
	}
	return order
}

// orderExternalID recovers the tracking id the storefront attached to the
// order. Themes write it in different places depending on how the checkout
// was customized, so three sources are tried in order: a note attribute
// (under either of the names themes use), the landing-site query string, and
// a customer tag.
func orderExternalID(raw shopifyOrder) string {
	for _, attr := range raw.NoteAttributes {
		if attr.Name == "external_id" || attr.Name == "_external_id" {
			return attr.Value
		}
	}
	if u, err := url.Parse(raw.LandingSite); err == nil {
		if id := u.Query().Get("external_id"); id != "" {
			return id
		}
	}
	for _, tag := range strings.Split(raw.Customer.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if rest, ok := strings.CutPrefix(tag, "external_id:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

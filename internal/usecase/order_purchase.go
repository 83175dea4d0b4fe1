package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/user/conversion-relay/internal/domain"
)

// fallbackContentID labels users first seen through a store webhook rather
// than the browser pipeline.
const fallbackContentID = "shopify_store"

// OrderPurchase is a purchase reported by a storefront webhook rather than
// the browser. Contact fields are expected pre-normalized; the address
// fields serve as a geo fallback when no stored user snapshot exists.
type OrderPurchase struct {
	OrderID     string
	ExternalID  string
	Personal    domain.PersonalData
	Value       *decimal.Decimal
	Currency    string
	ContentIDs  []string
	CountryCode string
	RegionCode  string
	City        string
	PostalCode  string
	SourceURL   string
}

// RelayOrderPurchase relays a webhook-reported purchase. The stored user
// snapshot, when present, supplies the browser identifiers and geo captured
// at page-view time — those give the conversion API far better matching than
// the webhook's billing address — and its contact fields are refreshed from
// the order. An unknown external id still produces a minimal user record and
// a dispatch under the default tenant.
func (uc *RelayUseCase) RelayOrderPurchase(ctx context.Context, order OrderPurchase) (RelayResult, error) {
	externalID := order.ExternalID
	if externalID == "" {
		externalID = "shopify_" + order.OrderID
	}

	user, err := uc.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return RelayResult{}, err
	}

	if user != nil {
		if err := uc.users.UpdateContact(ctx, externalID, order.Personal); err != nil {
			return RelayResult{}, err
		}
	} else {
		user = &domain.UserRecord{
			ContentID:   fallbackContentID,
			ExternalID:  externalID,
			CountryCode: order.CountryCode,
			RegionCode:  order.RegionCode,
			City:        order.City,
			PostalCode:  order.PostalCode,
			Personal:    order.Personal,
		}
		if err := uc.users.EnsureUser(ctx, *user); err != nil {
			return RelayResult{}, err
		}
	}

	cfg, ok := uc.tenants.Resolve(user.ContentID)
	if !ok {
		cfg = uc.defaults
	}

	contentIDs := order.ContentIDs
	if len(contentIDs) == 0 {
		contentIDs = []string{user.ContentID}
	}

	event := domain.CanonicalEvent{
		EventName:      string(domain.EventPurchase),
		EventID:        uuid.NewString(),
		EventTime:      time.Now().Unix(),
		ActionSource:   actionSourceWebsite,
		EventSourceURL: order.SourceURL,
		UserData: domain.UserData{
			ClientIPAddress: user.ClientIP,
			ClientUserAgent: user.UserAgent,
			ClickID:         user.ClickID,
			PairingID:       user.PairingID,
			ExternalID:      externalID,
			CountryCode:     firstNonEmpty(user.CountryCode, order.CountryCode),
			RegionCode:      firstNonEmpty(user.RegionCode, order.RegionCode),
			City:            firstNonEmpty(user.City, order.City),
			PostalCode:      firstNonEmpty(user.PostalCode, order.PostalCode),
			FirstName:       order.Personal.FirstName,
			LastName:        order.Personal.LastName,
			Email:           order.Personal.Email,
			Phone:           order.Personal.Phone,
		},
		CustomData: domain.CustomData{
			ContentIDs: contentIDs,
			Value:      order.Value,
			Currency:   order.Currency,
			CustomProperties: map[string]string{
				"order_id": order.OrderID,
			},
		},
	}

	if err := uc.dispatcher.Dispatch(ctx, event, cfg); err != nil {
		return RelayResult{}, fmt.Errorf("order %s: %w", order.OrderID, err)
	}

	if uc.audit != nil {
		if err := uc.audit.Append(ctx, event); err != nil {
			uc.logger.Warn("audit append skipped", "error", err, "event_id", event.EventID)
		}
	}

	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues("dispatched").Inc()
	}
	return RelayResult{EventID: event.EventID, ExternalID: externalID}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

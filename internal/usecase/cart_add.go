package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/user/conversion-relay/internal/domain"
)

// ErrUserNotFound is returned when a storefront flow references an external
// id with no stored identity snapshot. Surfaced to the caller as a 404.
var ErrUserNotFound = errors.New("user not found")

// CartAdd is an add-to-cart reported by the storefront theme rather than the
// tracking pixel. It carries only the product and session identifiers; the
// identity and geo snapshot comes from the stored user record.
type CartAdd struct {
	ExternalID string
	ProductID  string
	ClickID    string
	PairingID  string
	SourceURL  string
}

// RelayCartAdd relays a theme-reported add-to-cart. The stored user record
// is required — without a prior page view there is no identity snapshot
// worth submitting. Browser cookie identifiers sent with the call take
// precedence over the stored ones, since the live session is fresher than
// the snapshot; everything else comes from the record, and the dispatch runs
// under the stored user's tenant.
func (uc *RelayUseCase) RelayCartAdd(ctx context.Context, cart CartAdd) (RelayResult, error) {
	user, err := uc.users.FindByExternalID(ctx, cart.ExternalID)
	if err != nil {
		return RelayResult{}, err
	}
	if user == nil {
		return RelayResult{}, ErrUserNotFound
	}

	contentID := user.ContentID
	if contentID == "" {
		contentID = fallbackContentID
	}
	cfg, ok := uc.tenants.Resolve(contentID)
	if !ok {
		cfg = uc.defaults
	}

	event := domain.CanonicalEvent{
		EventName:      string(domain.EventAddToCart),
		EventID:        uuid.NewString(),
		EventTime:      time.Now().Unix(),
		ActionSource:   actionSourceWebsite,
		EventSourceURL: cart.SourceURL,
		UserData: domain.UserData{
			ClientIPAddress: user.ClientIP,
			ClientUserAgent: user.UserAgent,
			ClickID:         firstNonEmpty(cart.ClickID, user.ClickID),
			PairingID:       firstNonEmpty(cart.PairingID, user.PairingID),
			ExternalID:      user.ExternalID,
			CountryCode:     user.CountryCode,
			RegionCode:      user.RegionCode,
			City:            user.City,
			PostalCode:      user.PostalCode,
			FirstName:       user.Personal.FirstName,
			LastName:        user.Personal.LastName,
			Email:           user.Personal.Email,
			Phone:           user.Personal.Phone,
		},
		CustomData: domain.CustomData{
			ContentIDs: []string{cart.ProductID},
		},
	}

	if err := uc.dispatcher.Dispatch(ctx, event, cfg); err != nil {
		return RelayResult{}, err
	}

	if uc.audit != nil {
		if err := uc.audit.Append(ctx, event); err != nil {
			uc.logger.Warn("audit append skipped", "error", err, "event_id", event.EventID)
		}
	}

	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues("dispatched").Inc()
	}
	return RelayResult{EventID: event.EventID, ExternalID: user.ExternalID}, nil
}

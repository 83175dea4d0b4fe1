package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
)

const actionSourceWebsite = "website"

// RelayUseCase orchestrates the event pipeline: geo enrichment, tenant
// resolution, normalization, the first-page-view user insert, and dispatch.
type RelayUseCase struct {
	users      domain.UserRepository
	dispatcher domain.ConversionDispatcher
	geo        domain.GeoResolver
	tenants    domain.TenantResolver
	audit      domain.AuditRepository
	defaults   domain.TenantConfig
	metrics    *metrics.RelayMetrics
	logger     *slog.Logger
}

// NewRelayUseCase creates a new RelayUseCase. defaults are the ambient
// credentials used when a content id has no tenant configuration.
func NewRelayUseCase(
	users domain.UserRepository,
	dispatcher domain.ConversionDispatcher,
	geo domain.GeoResolver,
	tenants domain.TenantResolver,
	audit domain.AuditRepository,
	defaults domain.TenantConfig,
	m *metrics.RelayMetrics,
	logger *slog.Logger,
) *RelayUseCase {
	return &RelayUseCase{
		users:      users,
		dispatcher: dispatcher,
		geo:        geo,
		tenants:    tenants,
		audit:      audit,
		defaults:   defaults,
		metrics:    m,
		logger:     logger.With("component", "relay"),
	}
}

// RelayResult is returned to the caller so the browser pixel can report the
// same logical event under the shared event id.
type RelayResult struct {
	EventID    string
	ExternalID string
}

// InitResult carries the server-resolved identity and geo fields back to the
// client so it can bootstrap its in-browser tracking call. The external id is
// echoed, never generated: id generation is strictly client-owned.
type InitResult struct {
	City       string
	State      string
	Zip        string
	Country    string
	ClientIP   string
	UserAgent  string
	ClickID    string
	PairingID  string
	ExternalID string
}

// Init handles the initialization probe. It performs identity and geo
// resolution only; no canonical event is built, nothing is dispatched, and
// no user record is written.
func (uc *RelayUseCase) Init(ctx context.Context, req domain.InboundEvent, identity domain.ResolvedIdentity) InitResult {
	geo := uc.geo.Resolve(identity.ClientIP)
	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues("init").Inc()
	}
	return InitResult{
		City:       geo.City,
		State:      geo.RegionCode,
		Zip:        geo.PostalCode,
		Country:    geo.CountryCode,
		ClientIP:   identity.ClientIP,
		UserAgent:  identity.UserAgent,
		ClickID:    req.ClickID,
		PairingID:  req.PairingID,
		ExternalID: req.ExternalID,
	}
}

// Relay runs the full pipeline for one inbound event. Geo enrichment
// completes (success or null) before the event is assembled; the resolved
// tenant credentials travel with the dispatch call rather than through any
// shared state.
func (uc *RelayUseCase) Relay(ctx context.Context, req domain.InboundEvent, identity domain.ResolvedIdentity) (RelayResult, error) {
	geo := uc.geo.Resolve(identity.ClientIP)

	cfg, ok := uc.tenants.Resolve(req.ContentID)
	if !ok {
		cfg = uc.defaults
	}

	event, err := Normalize(req, identity, geo)
	if err != nil {
		return RelayResult{}, err
	}

	if req.Type == domain.EventPageView && req.ExternalID != "" {
		record := domain.UserRecord{
			ContentID:   req.ContentID,
			ExternalID:  req.ExternalID,
			ClientIP:    identity.ClientIP,
			UserAgent:   identity.UserAgent,
			ClickID:     req.ClickID,
			PairingID:   req.PairingID,
			CountryCode: geo.CountryCode,
			RegionCode:  geo.RegionCode,
			City:        geo.City,
			PostalCode:  geo.PostalCode,
			Personal:    identity.Personal,
		}
		if err := uc.users.EnsureUser(ctx, record); err != nil {
			return RelayResult{}, err
		}
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

	// The descriptive passthrough fields are kept out of the outbound
	// payload; they only exist for diagnosis.
	uc.logger.Debug("event relayed",
		"event_id", event.EventID,
		"event_name", event.EventName,
		"requested_type", req.Type,
		"content_id", req.ContentID,
		"app", req.App,
		"language", req.Language,
		"referrer_url", req.ReferrerURL,
		"page_url", req.PageURL,
		"page_title", req.PageTitle,
		"device_type", req.DeviceType,
	)
	return RelayResult{EventID: event.EventID, ExternalID: req.ExternalID}, nil
}

// Normalize assembles the canonical event for one request. The event type
// must already be inside the closed catalog; custom types are submitted
// under their remapped standard name with the requested type preserved as
// the original_event custom property. Optional content fields are set only
// when present, since the conversion API distinguishes omitted keys from
// empty ones.
func Normalize(req domain.InboundEvent, identity domain.ResolvedIdentity, geo domain.GeoLocation) (domain.CanonicalEvent, error) {
	if _, err := domain.ParseEventType(string(req.Type)); err != nil {
		return domain.CanonicalEvent{}, err
	}

	event := domain.CanonicalEvent{
		EventName:      string(req.Type.Canonical()),
		EventID:        uuid.NewString(),
		EventTime:      time.Now().Unix(),
		ActionSource:   actionSourceWebsite,
		EventSourceURL: req.EventSourceURL,
	}

	event.CustomData.ContentIDs = resolveContentIDs(req.ContentIDs, req.ContentID)
	if req.Type.Remapped() {
		event.CustomData.CustomProperties = map[string]string{"original_event": string(req.Type)}
	}
	if req.Type == domain.EventSearch && req.SearchString != "" {
		event.CustomData.SearchString = req.SearchString
	}
	if req.ContentType != "" {
		event.CustomData.ContentType = req.ContentType
	}
	if len(req.ContentCategory) > 0 {
		event.CustomData.ContentCategory = req.ContentCategory
	}
	if len(req.ContentName) > 0 {
		event.CustomData.ContentName = req.ContentName
	}
	if req.NumItems > 0 {
		event.CustomData.NumItems = req.NumItems
	}
	if req.Value != nil {
		event.CustomData.Value = req.Value
	}
	if req.Currency != "" {
		event.CustomData.Currency = req.Currency
	}

	event.UserData = domain.UserData{
		ClientIPAddress: identity.ClientIP,
		ClientUserAgent: identity.UserAgent,
		ClickID:         req.ClickID,
		PairingID:       req.PairingID,
		ExternalID:      req.ExternalID,
		CountryCode:     geo.CountryCode,
		RegionCode:      geo.RegionCode,
		City:            geo.City,
		PostalCode:      geo.PostalCode,
		FirstName:       identity.Personal.FirstName,
		LastName:        identity.Personal.LastName,
		Email:           identity.Personal.Email,
		Phone:           identity.Personal.Phone,
	}

	return event, nil
}

// resolveContentIDs prefers the caller's non-blank ids, in order, and falls
// back to the tenant content id when nothing usable was supplied.
func resolveContentIDs(supplied []string, contentID string) []string {
	ids := make([]string, 0, len(supplied))
	for _, id := range supplied {
		if strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{contentID}
	}
	return ids
}

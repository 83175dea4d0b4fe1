package domain

import "context"

// UserRepository defines the persistence interface for identity records.
type UserRepository interface {
	// EnsureUser inserts the record if no row exists for its external id.
	// A concurrent duplicate insert is treated as success, not an error.
	EnsureUser(ctx context.Context, record UserRecord) error

	// FindByExternalID returns the stored record, or nil when absent.
	FindByExternalID(ctx context.Context, externalID string) (*UserRecord, error)

	// UpdateContact replaces the contact fields of an existing record.
	// Used only by the order-webhook flow, never by the event pipeline.
	UpdateContact(ctx context.Context, externalID string, personal PersonalData) error
}

// ConversionDispatcher submits a canonical event to the external conversion
// API under the given tenant's credentials. Single attempt, no retries;
// failures propagate to the caller.
type ConversionDispatcher interface {
	Dispatch(ctx context.Context, event CanonicalEvent, cfg TenantConfig) error
}

// GeoResolver maps an IP address to a location. Implementations fail soft:
// any lookup problem yields the zero GeoLocation.
type GeoResolver interface {
	Resolve(ip string) GeoLocation
}

// TenantResolver looks up per-storefront conversion-API credentials by
// content id. A miss is not an error; callers fall back to defaults.
type TenantResolver interface {
	Resolve(contentID string) (TenantConfig, bool)
}

// AuditRepository records dispatched events on an append-only trail.
// Appends are best-effort; an unavailable trail never fails a request.
type AuditRepository interface {
	Append(ctx context.Context, event CanonicalEvent) error
}

package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidEventType is returned when an inbound event type is not part of
// the closed catalog. It must surface to the caller as a 400 before any
// enrichment work happens.
var ErrInvalidEventType = errors.New("invalid event type")

// EventType is the client-facing event taxonomy. It is wider than the
// conversion API's own taxonomy; custom types are remapped on dispatch.
type EventType string

const (
	EventInit             EventType = "Init"
	EventPageView         EventType = "PageView"
	EventViewHome         EventType = "ViewHome"
	EventViewList         EventType = "ViewList"
	EventViewContent      EventType = "ViewContent"
	EventAddToCart        EventType = "AddToCart"
	EventViewCart         EventType = "ViewCart"
	EventSearch           EventType = "Search"
	EventLead             EventType = "Lead"
	EventAddToWishlist    EventType = "AddToWishlist"
	EventInitiateCheckout EventType = "InitiateCheckout"
	EventPurchase         EventType = "Purchase"
	EventScroll25         EventType = "Scroll_25"
	EventScroll50         EventType = "Scroll_50"
	EventScroll75         EventType = "Scroll_75"
	EventScroll90         EventType = "Scroll_90"
	EventTimer1Min        EventType = "Timer_1min"
	EventPlayVideo        EventType = "PlayVideo"
	EventViewVideo25      EventType = "ViewVideo_25"
	EventViewVideo50      EventType = "ViewVideo_50"
	EventViewVideo75      EventType = "ViewVideo_75"
	EventViewVideo90      EventType = "ViewVideo_90"
)

// catalog is the closed set of accepted event types. Each entry carries the
// name submitted to the conversion API; custom instrumentation events
// collapse onto the standard taxonomy while the original type is preserved
// as a custom property.
var catalog = map[EventType]EventType{
	EventInit:             EventInit,
	EventPageView:         EventPageView,
	EventViewHome:         EventPageView,
	EventViewList:         EventViewContent,
	EventViewContent:      EventViewContent,
	EventAddToCart:        EventAddToCart,
	EventViewCart:         EventViewCart,
	EventSearch:           EventSearch,
	EventLead:             EventLead,
	EventAddToWishlist:    EventAddToWishlist,
	EventInitiateCheckout: EventInitiateCheckout,
	EventPurchase:         EventPurchase,
	EventScroll25:         EventViewContent,
	EventScroll50:         EventViewContent,
	EventScroll75:         EventViewContent,
	EventScroll90:         EventViewContent,
	EventTimer1Min:        EventViewContent,
	EventPlayVideo:        EventViewContent,
	EventViewVideo25:      EventViewContent,
	EventViewVideo50:      EventViewContent,
	EventViewVideo75:      EventViewContent,
	EventViewVideo90:      EventViewContent,
}

// ParseEventType validates a raw event type string against the catalog.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if _, ok := catalog[t]; !ok {
		return "", ErrInvalidEventType
	}
	return t, nil
}

// Canonical returns the conversion-API event name for this type.
func (t EventType) Canonical() EventType {
	if mapped, ok := catalog[t]; ok {
		return mapped
	}
	return t
}

// Remapped reports whether dispatching this type changes its name.
func (t EventType) Remapped() bool {
	return catalog[t] != "" && catalog[t] != t
}

// PersonalData holds the optional contact identifiers a client may attach to
// an event. All fields are independently optional.
type PersonalData struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Empty reports whether no contact field is set.
func (p PersonalData) Empty() bool {
	return p.FirstName == "" && p.LastName == "" && p.Email == "" && p.Phone == ""
}

// ResolvedIdentity is the request-scoped identity snapshot: transport-level
// attributes plus normalized personal data. It is never persisted on its own.
type ResolvedIdentity struct {
	ClientIP  string
	UserAgent string
	Personal  PersonalData
}

// GeoLocation is the result of a geolocation lookup. Either every field is
// populated from a single successful lookup (Found=true) or the whole value
// is zero; partial results are never produced.
type GeoLocation struct {
	CountryCode string
	RegionCode  string
	City        string
	PostalCode  string
	Found       bool
}

// InboundEvent is the parsed request payload for POST /events/send.
type InboundEvent struct {
	Type           EventType
	EventSourceURL string
	ClickID        string // _fbc browser cookie
	PairingID      string // _fbp browser cookie
	ExternalID     string
	ContentID      string // tenant/domain identifier
	Personal       PersonalData

	ContentIDs      []string
	ContentType     string
	ContentCategory []string
	ContentName     []string
	NumItems        int
	SearchString    string
	Value           *decimal.Decimal
	Currency        string

	// Passthrough descriptive fields, logged but not forwarded.
	App         string
	Language    string
	ReferrerURL string
	Timestamp   int64
	PageURL     string
	PageTitle   string
	DeviceType  string
}

// UserData is the identity payload of a canonical event. Fields are held in
// plain form; the dispatcher hashes the match keys on the wire. Absent fields
// are omitted from the outbound JSON, never sent as empty strings.
type UserData struct {
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	ClickID         string `json:"fbc,omitempty"`
	PairingID       string `json:"fbp,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	CountryCode     string `json:"country,omitempty"`
	RegionCode      string `json:"st,omitempty"`
	City            string `json:"ct,omitempty"`
	PostalCode      string `json:"zp,omitempty"`
	FirstName       string `json:"fn,omitempty"`
	LastName        string `json:"ln,omitempty"`
	Email           string `json:"em,omitempty"`
	Phone           string `json:"ph,omitempty"`
}

// CustomData is the content payload of a canonical event.
type CustomData struct {
	ContentIDs       []string          `json:"content_ids,omitempty"`
	ContentType      string            `json:"content_type,omitempty"`
	ContentCategory  []string          `json:"content_category,omitempty"`
	ContentName      []string          `json:"content_name,omitempty"`
	NumItems         int               `json:"num_items,omitempty"`
	SearchString     string            `json:"search_string,omitempty"`
	Value            *decimal.Decimal  `json:"value,omitempty"`
	Currency         string            `json:"currency,omitempty"`
	CustomProperties map[string]string `json:"custom_properties,omitempty"`
}

// CanonicalEvent is the unit submitted to the conversion API. It is
// assembled once per request and immutable afterwards; its only destinations
// are the external API and the audit trail.
type CanonicalEvent struct {
	EventName      string     `json:"event_name"`
	EventID        string     `json:"event_id"`
	EventTime      int64      `json:"event_time"`
	ActionSource   string     `json:"action_source"`
	EventSourceURL string     `json:"event_source_url,omitempty"`
	UserData       UserData   `json:"user_data"`
	CustomData     CustomData `json:"custom_data"`
}

// OriginalEvent returns the requested client-side event type when dispatch
// remapped it, or "" for events submitted under their own name.
func (e CanonicalEvent) OriginalEvent() string {
	return e.CustomData.CustomProperties["original_event"]
}

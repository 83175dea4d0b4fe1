package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/user/conversion-relay/internal/adapter/capi"
	"github.com/user/conversion-relay/internal/adapter/identity"
	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
	"github.com/user/conversion-relay/internal/usecase"
)

// RelayService is the use-case surface the events handler depends on.
type RelayService interface {
	Relay(ctx context.Context, req domain.InboundEvent, id domain.ResolvedIdentity) (usecase.RelayResult, error)
	Init(ctx context.Context, req domain.InboundEvent, id domain.ResolvedIdentity) usecase.InitResult
}

// EventsHandler handles POST /events/send.
type EventsHandler struct {
	service     RelayService
	resolver    *identity.Resolver
	logger      *slog.Logger
	metrics     *metrics.RelayMetrics
	maxBodySize int64
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(service RelayService, resolver *identity.Resolver, logger *slog.Logger, m *metrics.RelayMetrics, maxBodySize int64) *EventsHandler {
	return &EventsHandler{
		service:     service,
		resolver:    resolver,
		logger:      logger.With("component", "events_handler"),
		metrics:     m,
		maxBodySize: maxBodySize,
	}
}

// eventPayload mirrors the inbound field names of the tracking script.
type eventPayload struct {
	EventType       string      `json:"eventType"`
	EventSourceURL  string      `json:"event_source_url"`
	FBC             string      `json:"_fbc"`
	FBP             string      `json:"_fbp"`
	UserID          string      `json:"userId"`
	FirstName       string      `json:"fn"`
	LastName        string      `json:"ln"`
	Email           string      `json:"em"`
	Phone           string      `json:"ph"`
	ContentID       string      `json:"contentId"`
	ContentIDs      []string    `json:"content_ids"`
	Value           json.Number `json:"value"`
	Currency        string      `json:"currency"`
	ContentType     string      `json:"content_type"`
	ContentCategory []string    `json:"content_category"`
	ContentName     []string    `json:"content_name"`
	NumItems        json.Number `json:"num_items"`
	SearchString    string      `json:"search_string"`
	App             string      `json:"app"`
	Language        string      `json:"language"`
	ReferrerURL     string      `json:"referrer_url"`
	Timestamp       json.Number `json:"timestamp"`
	PageURL         string      `json:"page_url"`
	PageTitle       string      `json:"page_title"`
	DeviceType      string      `json:"device_type"`
}

// ServeHTTP processes one inbound event request.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	payload, err := h.parsePayload(r)
	if err != nil {
		h.reject(w, err)
		return
	}

	req, err := payload.toInboundEvent()
	if err != nil {
		h.reject(w, err)
		return
	}

	id := domain.ResolvedIdentity{
		ClientIP:  h.resolver.ResolveClientIP(r),
		UserAgent: r.UserAgent(),
		Personal: identity.NormalizePersonalData(domain.PersonalData{
			FirstName: payload.FirstName,
			LastName:  payload.LastName,
			Email:     payload.Email,
			Phone:     payload.Phone,
		}),
	}

	if req.Type == domain.EventInit {
		result := h.service.Init(r.Context(), req, id)
		writeJSON(w, http.StatusOK, map[string]string{
			"ct":                result.City,
			"st":                result.State,
			"zp":                result.Zip,
			"country":           result.Country,
			"client_ip_address": result.ClientIP,
			"client_user_agent": result.UserAgent,
			"fbc":               result.ClickID,
			"fbp":               result.PairingID,
			"external_id":       result.ExternalID,
		})
		return
	}

	result, err := h.service.Relay(r.Context(), req, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEventType) {
			h.reject(w, err)
			return
		}
		// Internal detail never reaches the caller; it lives in the log.
		h.logger.Error("event relay failed",
			"error", err,
			"event_type", req.Type,
			"content_id", req.ContentID,
			"external_id", req.ExternalID,
		)
		if h.metrics != nil {
			status := "error_internal"
			if errors.Is(err, capi.ErrDispatch) {
				status = "error_dispatch"
			}
			h.metrics.EventsTotal.WithLabelValues(status).Inc()
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"eventID":     result.EventID,
		"external_id": result.ExternalID,
	})
}

func (h *EventsHandler) reject(w http.ResponseWriter, err error) {
	if h.metrics != nil {
		h.metrics.EventsTotal.WithLabelValues("error_validation").Inc()
	}
	msg := "invalid request"
	if errors.Is(err, domain.ErrInvalidEventType) {
		msg = "invalid event type"
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// parsePayload accepts either a JSON body or form encoding, since the
// browser script posts whichever survives the page's CSP.
func (h *EventsHandler) parsePayload(r *http.Request) (*eventPayload, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var payload eventPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return &payload, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	payload := &eventPayload{
		EventType:      r.PostFormValue("eventType"),
		EventSourceURL: r.PostFormValue("event_source_url"),
		FBC:            r.PostFormValue("_fbc"),
		FBP:            r.PostFormValue("_fbp"),
		UserID:         r.PostFormValue("userId"),
		FirstName:      r.PostFormValue("fn"),
		LastName:       r.PostFormValue("ln"),
		Email:          r.PostFormValue("em"),
		Phone:          r.PostFormValue("ph"),
		ContentID:      r.PostFormValue("contentId"),
		Currency:       r.PostFormValue("currency"),
		ContentType:    r.PostFormValue("content_type"),
		SearchString:   r.PostFormValue("search_string"),
		App:            r.PostFormValue("app"),
		Language:       r.PostFormValue("language"),
		ReferrerURL:    r.PostFormValue("referrer_url"),
		PageURL:        r.PostFormValue("page_url"),
		PageTitle:      r.PostFormValue("page_title"),
		DeviceType:     r.PostFormValue("device_type"),
		Value:          json.Number(r.PostFormValue("value")),
		NumItems:       json.Number(r.PostFormValue("num_items")),
		Timestamp:      json.Number(r.PostFormValue("timestamp")),
	}
	payload.ContentIDs = formList(r, "content_ids")
	payload.ContentCategory = formList(r, "content_category")
	payload.ContentName = formList(r, "content_name")
	return payload, nil
}

// formList reads a repeated form field under both its plain and
// PHP-style bracketed names.
func formList(r *http.Request, key string) []string {
	if values, ok := r.PostForm[key]; ok {
		return values
	}
	return r.PostForm[key+"[]"]
}

func (p *eventPayload) toInboundEvent() (domain.InboundEvent, error) {
	eventType, err := domain.ParseEventType(p.EventType)
	if err != nil {
		return domain.InboundEvent{}, err
	}

	req := domain.InboundEvent{
		Type:            eventType,
		EventSourceURL:  p.EventSourceURL,
		ClickID:         p.FBC,
		PairingID:       p.FBP,
		ExternalID:      p.UserID,
		ContentID:       p.ContentID,
		ContentIDs:      p.ContentIDs,
		ContentType:     p.ContentType,
		ContentCategory: p.ContentCategory,
		ContentName:     p.ContentName,
		SearchString:    p.SearchString,
		Currency:        p.Currency,
		App:             p.App,
		Language:        p.Language,
		ReferrerURL:     p.ReferrerURL,
		PageURL:         p.PageURL,
		PageTitle:       p.PageTitle,
		DeviceType:      p.DeviceType,
	}

	if s := p.Value.String(); s != "" {
		value, err := decimal.NewFromString(s)
		if err != nil {
			return domain.InboundEvent{}, err
		}
		req.Value = &value
	}
	if s := p.NumItems.String(); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return domain.InboundEvent{}, err
		}
		req.NumItems = n
	}
	if s := p.Timestamp.String(); s != "" {
		ts, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.InboundEvent{}, err
		}
		req.Timestamp = ts
	}

	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

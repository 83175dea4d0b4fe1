package capi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
)

// ErrDispatch wraps every transport or API-level submission failure. The
// request handler translates it into an opaque 500; the underlying detail is
// only ever logged server-side.
var ErrDispatch = errors.New("conversion api dispatch failed")

// Client submits canonical events to the Meta Conversions API. Credentials
// arrive per call; the client holds no tenant state, so concurrent requests
// for different tenants cannot cross-contaminate.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *metrics.RelayMetrics
}

// NewClient creates a Conversions API client against baseURL
// (e.g. https://graph.facebook.com/v18.0).
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, m *metrics.RelayMetrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger.With("component", "capi"),
		metrics:    m,
	}
}

// wireUserData is the on-the-wire identity payload. Match keys are SHA-256
// hashed per the API's matching contract; transport attributes and browser
// cookie identifiers are sent in plain form. Absent fields are omitted, not
// sent as empty strings, because the API treats the two differently.
type wireUserData struct {
	Email           string `json:"em,omitempty"`
	Phone           string `json:"ph,omitempty"`
	FirstName       string `json:"fn,omitempty"`
	LastName        string `json:"ln,omitempty"`
	City            string `json:"ct,omitempty"`
	State           string `json:"st,omitempty"`
	Zip             string `json:"zp,omitempty"`
	Country         string `json:"country,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	ClickID         string `json:"fbc,omitempty"`
	PairingID       string `json:"fbp,omitempty"`
}

type wireEvent struct {
	EventName      string            `json:"event_name"`
	EventTime      int64             `json:"event_time"`
	EventID        string            `json:"event_id"`
	ActionSource   string            `json:"action_source"`
	EventSourceURL string            `json:"event_source_url,omitempty"`
	UserData       wireUserData      `json:"user_data"`
	CustomData     domain.CustomData `json:"custom_data"`
}

type requestBody struct {
	Data          []wireEvent `json:"data"`
	TestEventCode string      `json:"test_event_code,omitempty"`
	AccessToken   string      `json:"access_token"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Dispatch submits one event under the tenant's credentials. Single attempt,
// no retries, no queueing; any failure is wrapped in ErrDispatch.
func (c *Client) Dispatch(ctx context.Context, event domain.CanonicalEvent, cfg domain.TenantConfig) error {
	start := time.Now()
	err := c.send(ctx, event, cfg)
	if c.metrics != nil {
		c.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	c.logger.Info("event dispatched",
		"event_id", event.EventID,
		"event_name", event.EventName,
		"action_source", event.ActionSource,
		"pixel_id", cfg.PixelID,
	)
	return nil
}

func (c *Client) send(ctx context.Context, event domain.CanonicalEvent, cfg domain.TenantConfig) error {
	body := requestBody{
		Data:          []wireEvent{toWire(event)},
		TestEventCode: cfg.TestCode,
		AccessToken:   cfg.AccessToken,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/events", c.baseURL, cfg.PixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var parsed apiError
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			return fmt.Errorf("api error %d (%s): %s", parsed.Error.Code, parsed.Error.Type, parsed.Error.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}
	return nil
}

func toWire(event domain.CanonicalEvent) wireEvent {
	ud := event.UserData
	return wireEvent{
		EventName:      event.EventName,
		EventTime:      event.EventTime,
		EventID:        event.EventID,
		ActionSource:   event.ActionSource,
		EventSourceURL: event.EventSourceURL,
		UserData: wireUserData{
			Email:           hashField(ud.Email),
			Phone:           hashField(ud.Phone),
			FirstName:       hashField(ud.FirstName),
			LastName:        hashField(ud.LastName),
			City:            hashField(ud.City),
			State:           hashField(ud.RegionCode),
			Zip:             hashField(ud.PostalCode),
			Country:         hashField(ud.CountryCode),
			ExternalID:      hashField(ud.ExternalID),
			ClientIPAddress: ud.ClientIPAddress,
			ClientUserAgent: ud.ClientUserAgent,
			ClickID:         ud.ClickID,
			PairingID:       ud.PairingID,
		},
		CustomData: event.CustomData,
	}
}

// hashField returns the SHA-256 hex digest of a match key, or "" for an
// empty value so the key is omitted from the wire payload.
func hashField(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

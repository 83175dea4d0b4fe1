package capi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/conversion-relay/internal/domain"
)

func testEvent() domain.CanonicalEvent {
	return domain.CanonicalEvent{
		EventName:      "Purchase",
		EventID:        "evt-1",
		EventTime:      1700000000,
		ActionSource:   "website",
		EventSourceURL: "https://shop.example/checkout",
		UserData: domain.UserData{
			Email:           "maria@example.com",
			ClientIPAddress: "203.0.113.7",
			ClientUserAgent: "Mozilla/5.0",
			ClickID:         "fb.1.123.abc",
			PairingID:       "fb.1.456.def",
		},
		CustomData: domain.CustomData{ContentIDs: []string{"sku-1"}, Currency: "BRL"},
	}
}

func TestClientDispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := domain.TenantConfig{PixelID: "px-42", AccessToken: "secret-token", TestCode: "TEST99"}

	t.Run("success", func(t *testing.T) {
		var gotPath string
		var gotBody requestBody

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Fatalf("failed to decode request body: %v", err)
			}
			w.Write([]byte(`{"events_received": 1}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 2*time.Second, logger, nil)
		if err := client.Dispatch(context.Background(), testEvent(), cfg); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if gotPath != "/px-42/events" {
			t.Errorf("expected pixel id in path, got %q", gotPath)
		}
		if gotBody.AccessToken != "secret-token" {
			t.Error("access token not forwarded")
		}
		if gotBody.TestEventCode != "TEST99" {
			t.Error("test event code not forwarded")
		}
		if len(gotBody.Data) != 1 {
			t.Fatalf("expected 1 event, got %d", len(gotBody.Data))
		}

		wire := gotBody.Data[0]
		emSum := sha256.Sum256([]byte("maria@example.com"))
		if wire.UserData.Email != hex.EncodeToString(emSum[:]) {
			t.Errorf("email not hashed on the wire: %q", wire.UserData.Email)
		}
		if wire.UserData.ClientIPAddress != "203.0.113.7" {
			t.Error("client ip must be sent in plain form")
		}
		if wire.UserData.ClickID != "fb.1.123.abc" {
			t.Error("fbc must be sent in plain form")
		}
		if wire.EventID != "evt-1" || wire.EventName != "Purchase" {
			t.Errorf("unexpected wire event: %+v", wire)
		}
	})

	t.Run("api error surfaces as ErrDispatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "Invalid parameter", "type": "OAuthException", "code": 100}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, 2*time.Second, logger, nil)
		err := client.Dispatch(context.Background(), testEvent(), cfg)
		if !errors.Is(err, ErrDispatch) {
			t.Fatalf("expected ErrDispatch, got %v", err)
		}
	})

	t.Run("transport error surfaces as ErrDispatch", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 200*time.Millisecond, logger, nil)
		err := client.Dispatch(context.Background(), testEvent(), cfg)
		if !errors.Is(err, ErrDispatch) {
			t.Fatalf("expected ErrDispatch, got %v", err)
		}
	})

	t.Run("empty match keys omitted from payload", func(t *testing.T) {
		var raw map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &raw)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		event := testEvent()
		event.UserData.Email = ""

		client := NewClient(server.URL, 2*time.Second, logger, nil)
		if err := client.Dispatch(context.Background(), event, cfg); err != nil {
			t.Fatal(err)
		}

		userData := raw["data"].([]any)[0].(map[string]any)["user_data"].(map[string]any)
		if _, present := userData["em"]; present {
			t.Error("empty email must be omitted, not sent as an empty string")
		}
	})
}

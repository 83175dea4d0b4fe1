package redisaudit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
)

// ErrUnavailable is returned when the audit stream cannot be reached.
// Callers treat it as a degraded append, never as a request failure.
var ErrUnavailable = errors.New("audit stream unavailable")

// AuditRepository implements domain.AuditRepository on a Redis Stream.
// The trail is best-effort: the relay has no delivery guarantee for its own
// events, so a down Redis only costs audit visibility, never a request.
type AuditRepository struct {
	client      *redis.Client
	logger      *slog.Logger
	streamKey   string
	metrics     *metrics.RelayMetrics
	isAvailable atomic.Bool
}

// NewAuditRepository creates a Redis-backed audit trail. Pass a nil client
// to disable auditing entirely (every Append becomes a counted drop).
func NewAuditRepository(client *redis.Client, streamKey string, logger *slog.Logger, m *metrics.RelayMetrics) *AuditRepository {
	repo := &AuditRepository{
		client:    client,
		logger:    logger.With("component", "audit_repository"),
		streamKey: streamKey,
		metrics:   m,
	}
	repo.isAvailable.Store(client != nil)
	return repo
}

// StartHealthCheck monitors Redis connectivity in the background so a
// recovered connection resumes auditing without a restart.
func (r *AuditRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if r.client == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Ping(ctx).Err(); err != nil {
				if r.isAvailable.CompareAndSwap(true, false) {
					r.logger.Error("audit stream connection lost", "error", err)
				}
			} else {
				if r.isAvailable.CompareAndSwap(false, true) {
					r.logger.Info("audit stream connection recovered")
				}
			}
		}
	}
}

// Append records a dispatched event on the stream. Failures mark the stream
// unavailable and are reported to the caller; they carry no request impact.
func (r *AuditRepository) Append(ctx context.Context, event domain.CanonicalEvent) error {
	if r.client == nil || !r.isAvailable.Load() {
		r.drop()
		return ErrUnavailable
	}

	userData, err := json.Marshal(event.UserData)
	if err != nil {
		return err
	}
	customData, err := json.Marshal(event.CustomData)
	if err != nil {
		return err
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamKey,
		Values: map[string]interface{}{
			"event_id":         event.EventID,
			"event_name":       event.EventName,
			"event_time":       event.EventTime,
			"action_source":    event.ActionSource,
			"event_source_url": event.EventSourceURL,
			"original_event":   event.OriginalEvent(),
			"user_data":        string(userData),
			"custom_data":      string(customData),
		},
	}).Err()
	if err != nil {
		r.isAvailable.Store(false)
		r.drop()
		r.logger.Warn("failed to append to audit stream", "error", err, "event_id", event.EventID)
		return ErrUnavailable
	}
	return nil
}

func (r *AuditRepository) drop() {
	if r.metrics != nil {
		r.metrics.AuditDropped.Inc()
	}
}

package tenant

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
)

// Resolver maps content ids to per-storefront conversion-API credentials.
// The map is loaded once at startup and read-only afterwards; resolved
// configs are returned by value so no request can mutate shared state.
type Resolver struct {
	tenants map[string]domain.TenantConfig
	logger  *slog.Logger
	metrics *metrics.RelayMetrics
}

// NewResolver creates a Resolver over a static tenant map.
func NewResolver(tenants map[string]domain.TenantConfig, logger *slog.Logger, m *metrics.RelayMetrics) *Resolver {
	if tenants == nil {
		tenants = map[string]domain.TenantConfig{}
	}
	return &Resolver{
		tenants: tenants,
		logger:  logger.With("component", "tenant"),
		metrics: m,
	}
}

// Resolve returns the credentials for contentID. A miss is logged and
// counted but not an error; the caller proceeds with its default credentials.
func (r *Resolver) Resolve(contentID string) (domain.TenantConfig, bool) {
	cfg, ok := r.tenants[contentID]
	if !ok {
		if r.metrics != nil {
			r.metrics.TenantMisses.Inc()
		}
		r.logger.Info("no tenant configuration for content id, using defaults", "content_id", contentID)
		return domain.TenantConfig{}, false
	}
	return cfg, true
}

// LoadFile reads a tenant map from a JSON file shaped as
// {"<content_id>": {"pixel_id": "...", "access_token": "...", "test_code": "..."}}.
// An empty path yields an empty map.
func LoadFile(path string) (map[string]domain.TenantConfig, error) {
	if path == "" {
		return map[string]domain.TenantConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant config: %w", err)
	}

	tenants := map[string]domain.TenantConfig{}
	if err := json.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("parse tenant config: %w", err)
	}
	return tenants, nil
}

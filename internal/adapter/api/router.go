package api

import (
	"log/slog"
	"net/http"

	"github.com/user/conversion-relay/internal/adapter/api/handler"
	"github.com/user/conversion-relay/internal/adapter/api/middleware"
	"github.com/user/conversion-relay/internal/adapter/identity"
	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/pkg/config"
	"github.com/user/conversion-relay/internal/usecase"
)

// NewRouter creates and configures the main HTTP router for the relay service.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	resolver *identity.Resolver,
	relayUseCase *usecase.RelayUseCase,
	m *metrics.RelayMetrics,
) http.Handler {
	mux := http.NewServeMux()

	eventsHandler := handler.NewEventsHandler(relayUseCase, resolver, logger, m, cfg.MaxBodySize)
	shopifyHandler := handler.NewShopifyHandler(relayUseCase, logger, cfg.MaxBodySize)

	rateLimit := middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, resolver, m)

	mux.Handle("POST /events/send", rateLimit(eventsHandler))
	mux.Handle("POST /webhook/shopify", shopifyHandler)
	mux.Handle("POST /shopify/add-to-cart", rateLimit(http.HandlerFunc(shopifyHandler.AddToCart)))

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

package identity

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/user/conversion-relay/internal/domain"
)

// fallbackHeaders are checked in order when X-Forwarded-For yields nothing.
// CDN-specific real-IP headers come first, then the generic variants.
var fallbackHeaders = []string{
	"CF-Connecting-IP", // Cloudflare
	"True-Client-IP",   // Cloudflare Enterprise
	"X-Real-IP",        // Nginx
	"X-Client-IP",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// Resolver extracts a best-effort client IP from proxy headers and
// normalizes personal identifiers.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger.With("component", "identity")}
}

// ResolveClientIP returns the original client address for the request.
//
// Priority is fixed: the first comma-separated entry of X-Forwarded-For (the
// original client by convention, not the nearest proxy) when it parses as an
// IPv4 or IPv6 address; then each fallback header in order, again requiring a
// syntactically valid address; finally the transport peer address. The result
// is always a non-empty string. Each decision is logged at debug level so
// misattributed IPs can be traced to the header that produced them.
func (r *Resolver) ResolveClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if isValidIP(first) {
			r.logger.Debug("client ip from forwarding header",
				"header", "X-Forwarded-For", "ip", first, "full_header", xff)
			return first
		}
	}

	for _, name := range fallbackHeaders {
		value := strings.TrimSpace(req.Header.Get(name))
		if value != "" && isValidIP(value) {
			r.logger.Debug("client ip from proxy header", "header", name, "ip", value)
			return value
		}
	}

	peer := req.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	r.logger.Debug("client ip from transport peer", "ip", peer)
	return peer
}

// NormalizePersonalData trims and lowercases name and email fields and
// strips every non-digit from the phone. An email without an "@" or a phone
// outside a plausible national digit length is dropped rather than forwarded,
// since malformed identifiers reduce match quality at the conversion API.
func NormalizePersonalData(raw domain.PersonalData) domain.PersonalData {
	out := domain.PersonalData{
		FirstName: strings.ToLower(strings.TrimSpace(raw.FirstName)),
		LastName:  strings.ToLower(strings.TrimSpace(raw.LastName)),
		Email:     strings.ToLower(strings.TrimSpace(raw.Email)),
		Phone:     digitsOnly(raw.Phone),
	}
	if out.Email != "" && !strings.Contains(out.Email, "@") {
		out.Email = ""
	}
	if n := len(out.Phone); n != 0 && (n < 8 || n > 15) {
		out.Phone = ""
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

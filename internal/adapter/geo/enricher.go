package geo

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"unicode"

	"github.com/oschwald/geoip2-golang"
	"golang.org/x/text/unicode/norm"

	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/domain"
)

// minDatabaseSize guards against a truncated or placeholder database file.
// Anything smaller is treated as "no database", not attempted.
const minDatabaseSize = 100

// Enricher resolves IP addresses against a local GeoLite2 City database.
// Every failure mode degrades to the zero GeoLocation: partial geo data is
// worse than none for downstream identity matching, since a stale country
// paired with a fresh city would corrupt match quality.
type Enricher struct {
	reader  *geoip2.Reader
	logger  *slog.Logger
	metrics *metrics.RelayMetrics
}

// NewEnricher opens the database at path. A missing, unreadable, or
// near-empty file is not an error: the enricher starts in unavailable mode
// and every lookup returns a null location.
func NewEnricher(path string, logger *slog.Logger, m *metrics.RelayMetrics) *Enricher {
	e := &Enricher{logger: logger.With("component", "geo"), metrics: m}

	info, err := os.Stat(path)
	if err != nil || info.Size() < minDatabaseSize {
		e.logger.Warn("geo database unavailable, lookups will return null locations", "path", path, "error", err)
		return e
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		e.logger.Warn("failed to open geo database, lookups will return null locations", "path", path, "error", err)
		return e
	}
	e.reader = reader
	return e
}

// Close releases the underlying database reader.
func (e *Enricher) Close() error {
	if e.reader == nil {
		return nil
	}
	return e.reader.Close()
}

// Resolve looks up the location for ip. Country and region ISO codes are
// lowercased, the city name is reduced to ASCII lowercase letters, and the
// postal code is kept verbatim. All fields are populated from one successful
// lookup or none are.
func (e *Enricher) Resolve(ip string) domain.GeoLocation {
	if e.reader == nil {
		return domain.GeoLocation{}
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		e.fail("unparseable ip", ip, nil)
		return domain.GeoLocation{}
	}

	record, err := e.reader.City(parsed)
	if err != nil {
		e.fail("lookup failed", ip, err)
		return domain.GeoLocation{}
	}
	if record.Country.IsoCode == "" {
		e.fail("ip not found in database", ip, nil)
		return domain.GeoLocation{}
	}

	region := ""
	if n := len(record.Subdivisions); n > 0 {
		// The most specific subdivision is the last entry.
		region = record.Subdivisions[n-1].IsoCode
	}

	return domain.GeoLocation{
		CountryCode: strings.ToLower(record.Country.IsoCode),
		RegionCode:  strings.ToLower(region),
		City:        NormalizeCity(record.City.Names["en"]),
		PostalCode:  record.Postal.Code,
		Found:       true,
	}
}

func (e *Enricher) fail(reason, ip string, err error) {
	if e.metrics != nil {
		e.metrics.GeoLookupFails.Inc()
	}
	e.logger.Warn("geo lookup degraded to null location", "reason", reason, "ip", ip, "error", err)
}

// NormalizeCity reduces a city name to ASCII lowercase letters for identity
// matching: lowercase, NFD-decompose to strip diacritics (covering the
// Portuguese accented set), then drop every remaining rune outside [a-z].
// The function is idempotent and never fails; an input with no letters
// reduces to the empty string.
func NormalizeCity(city string) string {
	lowered := strings.ToLower(strings.TrimSpace(city))
	decomposed := norm.NFD.String(lowered)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

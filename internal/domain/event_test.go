package domain

import (
	"errors"
	"testing"
)

func TestParseEventType(t *testing.T) {
	valid := []string{
		"Init", "PageView", "ViewHome", "ViewList", "ViewContent", "AddToCart",
		"ViewCart", "Search", "Lead", "AddToWishlist", "InitiateCheckout",
		"Purchase", "Scroll_25", "Scroll_50", "Scroll_75", "Scroll_90",
		"Timer_1min", "PlayVideo", "ViewVideo_25", "ViewVideo_50",
		"ViewVideo_75", "ViewVideo_90",
	}
	for _, s := range valid {
		if _, err := ParseEventType(s); err != nil {
			t.Errorf("ParseEventType(%q) unexpectedly failed: %v", s, err)
		}
	}

	invalid := []string{"", "Bogus", "pageview", "PAGEVIEW", "Scroll_100", "Purchase "}
	for _, s := range invalid {
		if _, err := ParseEventType(s); !errors.Is(err, ErrInvalidEventType) {
			t.Errorf("ParseEventType(%q) = %v, want ErrInvalidEventType", s, err)
		}
	}
}

func TestEventTypeCanonical(t *testing.T) {
	// Every catalog member must map to a standard conversion API name, and
	// remapping must be stable under repetition.
	for raw := range catalog {
		canonical := raw.Canonical()
		if canonical.Canonical() != canonical {
			t.Errorf("Canonical not stable for %q: %q -> %q", raw, canonical, canonical.Canonical())
		}
		if canonical.Remapped() {
			t.Errorf("canonical name %q must not itself be remapped", canonical)
		}
	}

	if EventScroll50.Canonical() != EventViewContent {
		t.Error("Scroll_50 must dispatch as ViewContent")
	}
	if EventViewHome.Canonical() != EventPageView {
		t.Error("ViewHome must dispatch as PageView")
	}
	if EventPurchase.Remapped() {
		t.Error("Purchase must dispatch under its own name")
	}
}
